// Package gateway integrates the fiat payment provider used for card and
// bank deposits.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

const (
	// DefaultBaseURL is the provider's public API endpoint.
	DefaultBaseURL = "https://api.paystack.co"

	defaultTimeout   = 20 * time.Second
	maxResponseBytes = 1 << 20
)

// Config holds the gateway client settings.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// PaystackClient initializes hosted payment sessions. The provider settles
// out of band; confirmation arrives through its webhook, not through this
// client.
type PaystackClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *logger.Logger
}

var _ storage.PaymentGateway = (*PaystackClient)(nil)

func NewPaystackClient(cfg Config, log *logger.Logger) (*PaystackClient, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("gateway secret key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewDefault("gateway")
	}
	return &PaystackClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}, nil
}

type initializeRequest struct {
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (p *PaystackClient) InitializePayment(ctx context.Context, amount decimal.Decimal, contact string) (storage.PaymentSession, error) {
	// The provider wants amounts in the minor currency unit.
	minor := amount.Mul(decimal.NewFromInt(100)).IntPart()

	body, err := json.Marshal(initializeRequest{Email: contact, Amount: minor})
	if err != nil {
		return storage.PaymentSession{}, fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return storage.PaymentSession{}, fmt.Errorf("create initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return storage.PaymentSession{}, fmt.Errorf("initialize payment: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return storage.PaymentSession{}, fmt.Errorf("read initialize response: %w", err)
	}

	var parsed initializeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return storage.PaymentSession{}, fmt.Errorf("decode initialize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Status {
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return storage.PaymentSession{}, fmt.Errorf("payment initialization rejected: %s", msg)
	}

	p.log.Info("payment session created", "reference", parsed.Data.Reference)
	return storage.PaymentSession{
		CorrelationID: parsed.Data.Reference,
		RedirectURL:   parsed.Data.AuthorizationURL,
	}, nil
}
