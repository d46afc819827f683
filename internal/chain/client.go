// Package chain talks to the Blurt distributed ledger: account reads over
// JSON-RPC and transfer broadcasts through the platform signing relay.
package chain

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
	"github.com/tidwall/gjson"

	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

const (
	// DefaultNodeURL is the public RPC node the platform reads from.
	DefaultNodeURL = "https://rpc.blurt.world"

	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20
)

// Config holds the chain client settings.
type Config struct {
	// NodeURL is the JSON-RPC endpoint for account reads.
	NodeURL string
	// RelayURL is the platform signing relay. Transfers are posted there
	// with the holder's key and the relay signs and broadcasts the
	// operation to the network.
	RelayURL string
	// Timeout bounds each HTTP round trip.
	Timeout time.Duration
}

// Client talks to the distributed ledger. Reads go straight to a public
// node; broadcasts go through the platform relay.
type Client struct {
	nodeURL    string
	relayURL   string
	httpClient *http.Client
	log        *logger.Logger
}

var _ storage.LedgerNetwork = (*Client)(nil)

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.NodeURL == "" {
		cfg.NodeURL = DefaultNodeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewDefault("chain")
	}
	return &Client{
		nodeURL:  strings.TrimRight(cfg.NodeURL, "/"),
		relayURL: strings.TrimRight(cfg.RelayURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

func (c *Client) call(ctx context.Context, method string, params []any) (gjson.Result, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}

	parsed := gjson.ParseBytes(raw)
	if errMsg := parsed.Get("error.message"); errMsg.Exists() {
		return gjson.Result{}, fmt.Errorf("rpc %s: %s", method, errMsg.String())
	}
	return parsed.Get("result"), nil
}

func (c *Client) getAccount(ctx context.Context, account string) (gjson.Result, error) {
	result, err := c.call(ctx, "condenser_api.get_accounts", []any{[]string{account}})
	if err != nil {
		return gjson.Result{}, err
	}
	accounts := result.Array()
	if len(accounts) == 0 {
		return gjson.Result{}, nil
	}
	return accounts[0], nil
}

func (c *Client) AccountExists(ctx context.Context, account string) (bool, error) {
	acc, err := c.getAccount(ctx, account)
	if err != nil {
		return false, err
	}
	return acc.Exists(), nil
}

// AccountBalance returns the liquid and reward balances of a network
// account. Node responses carry amounts as "12.345 BLURT" strings.
func (c *Client) AccountBalance(ctx context.Context, account string) (decimal.Decimal, decimal.Decimal, error) {
	acc, err := c.getAccount(ctx, account)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if !acc.Exists() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("account %s not found on network", account)
	}

	available, err := parseAsset(acc.Get("balance").String())
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	reward, err := parseAsset(acc.Get("reward_balance").String())
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse reward balance: %w", err)
	}
	return available, reward, nil
}

type relayTransfer struct {
	To            string `json:"to"`
	Amount        string `json:"amount"`
	Memo          string `json:"memo"`
	SigningSecret string `json:"signing_secret"`
}

// Broadcast hands a transfer to the signing relay. The relay owns the
// signing step; a malformed or unauthorized key surfaces as a relay error.
func (c *Client) Broadcast(ctx context.Context, tx storage.TransferBroadcast) (string, error) {
	if c.relayURL == "" {
		return "", fmt.Errorf("broadcast relay not configured")
	}

	body, err := json.Marshal(relayTransfer{
		To:            tx.Destination,
		Amount:        tx.Amount.StringFixed(3) + " BLURT",
		Memo:          tx.Memo,
		SigningSecret: tx.SigningSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal relay transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL+"/v1/transfer", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay transfer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read relay response: %w", err)
	}

	parsed := gjson.ParseBytes(raw)
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Get("error").String()
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("relay transfer rejected: %s", msg)
	}

	txID := parsed.Get("transaction_id").String()
	if txID == "" {
		return "", fmt.Errorf("relay response missing transaction id")
	}
	c.log.Info("broadcast accepted", "destination", tx.Destination, "tx_id", txID)
	return txID, nil
}

// parseAsset splits a node asset string like "12.345 BLURT" into its
// numeric part.
func parseAsset(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	num, _, _ := strings.Cut(s, " ")
	return decimal.NewFromString(num)
}
