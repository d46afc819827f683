package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

const heartbeatInterval = 30 * time.Second

// RealtimeFeed implements storage.ChangeFeed over the Supabase realtime
// websocket. One websocket carries every channel; channels are joined and
// left with phoenix protocol frames.
type RealtimeFeed struct {
	mu       sync.RWMutex
	url      string
	apiKey   string
	conn     *websocket.Conn
	handlers map[string][]func(storage.ChangeEvent)
	done     chan struct{}
	ref      int
	log      *logger.Logger
}

var _ storage.ChangeFeed = (*RealtimeFeed)(nil)

// NewRealtimeFeed builds a feed from the project's HTTP base URL. The
// websocket endpoint is derived by scheme swap.
func NewRealtimeFeed(baseURL, apiKey string, log *logger.Logger) *RealtimeFeed {
	wsURL := baseURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[5:]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	if log == nil {
		log = logger.NewDefault("realtime-feed")
	}
	return &RealtimeFeed{
		url:      wsURL,
		apiKey:   apiKey,
		handlers: make(map[string][]func(storage.ChangeEvent)),
		done:     make(chan struct{}),
		log:      log,
	}
}

// Connect establishes the websocket connection and starts the reader and
// heartbeat loops. Calling it on a live connection is a no-op.
func (r *RealtimeFeed) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop()
	go r.heartbeat()

	return nil
}

// Disconnect closes the websocket. Joined channels are implicitly dropped
// server side.
func (r *RealtimeFeed) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}

	close(r.done)
	r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *RealtimeFeed) SubscribeBalanceChanges(ctx context.Context, userID string, fn func(storage.ChangeEvent)) (storage.Subscription, error) {
	topic := fmt.Sprintf("realtime:public:%s:user_id=eq.%s", tableBalances, userID)
	return r.join(ctx, topic, tableBalances, "*", fn)
}

func (r *RealtimeFeed) SubscribeTransactionInserts(ctx context.Context, userID string, fn func(storage.ChangeEvent)) (storage.Subscription, error) {
	// A row matches a single realtime filter only, so sent and received
	// inserts need separate channels.
	sent, err := r.join(ctx,
		fmt.Sprintf("realtime:public:%s:sender_id=eq.%s", tableTransactions, userID),
		tableTransactions, "INSERT", fn)
	if err != nil {
		return nil, err
	}
	received, err := r.join(ctx,
		fmt.Sprintf("realtime:public:%s:receiver_id=eq.%s", tableTransactions, userID),
		tableTransactions, "INSERT", fn)
	if err != nil {
		sent.Close()
		return nil, err
	}
	return compositeSubscription{sent, received}, nil
}

type channelSubscription struct {
	feed    *RealtimeFeed
	topic   string
	joinRef string
	once    sync.Once
}

func (c *channelSubscription) Close() error {
	var err error
	c.once.Do(func() {
		err = c.feed.leave(c.topic, c.joinRef)
	})
	return err
}

type compositeSubscription []storage.Subscription

func (c compositeSubscription) Close() error {
	var first error
	for _, s := range c {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *RealtimeFeed) join(ctx context.Context, topic, table, event string, fn func(storage.ChangeEvent)) (storage.Subscription, error) {
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ref++
	ref := fmt.Sprintf("%d", r.ref)

	msg := map[string]any{
		"topic":    topic,
		"event":    "phx_join",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("join %s: %w", topic, err)
	}

	wrap := func(ev storage.ChangeEvent) {
		ev.Table = table
		fn(ev)
	}
	if event == "*" {
		for _, e := range []string{"INSERT", "UPDATE", "DELETE"} {
			r.handlers[topic+":"+e] = append(r.handlers[topic+":"+e], wrap)
		}
	} else {
		r.handlers[topic+":"+event] = append(r.handlers[topic+":"+event], wrap)
	}

	return &channelSubscription{feed: r, topic: topic, joinRef: ref}, nil
}

func (r *RealtimeFeed) leave(topic, joinRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range []string{"INSERT", "UPDATE", "DELETE"} {
		delete(r.handlers, topic+":"+e)
	}

	if r.conn == nil {
		return nil
	}

	r.ref++
	msg := map[string]any{
		"topic":    topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      fmt.Sprintf("%d", r.ref),
		"join_ref": joinRef,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("leave %s: %w", topic, err)
	}
	return nil
}

type realtimeFrame struct {
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

func (r *RealtimeFeed) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			r.log.WithError(err).Warnf("realtime read loop terminated")
			return
		}

		var frame realtimeFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}
		r.dispatch(frame)
	}
}

func (r *RealtimeFeed) dispatch(frame realtimeFrame) {
	event := frame.Event
	if t, ok := frame.Payload["type"].(string); ok {
		event = t
	}

	r.mu.RLock()
	handlers := r.handlers[frame.Topic+":"+event]
	r.mu.RUnlock()

	for _, h := range handlers {
		go h(storage.ChangeEvent{Event: event})
	}
}

func (r *RealtimeFeed) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				r.ref++
				r.conn.WriteJSON(map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     fmt.Sprintf("%d", r.ref),
				})
			}
			r.mu.Unlock()
		}
	}
}
