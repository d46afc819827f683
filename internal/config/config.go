// Package config loads the wallet layer's runtime configuration from the
// environment, with optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the wallet daemon.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// SupabaseURL and SupabaseKey identify the backing store project.
	SupabaseURL string
	SupabaseKey string

	// ChainNodeURL is the public ledger RPC node; ChainRelayURL is the
	// platform signing relay for outbound transfers.
	ChainNodeURL  string
	ChainRelayURL string

	// PaystackSecretKey authenticates against the fiat gateway.
	PaystackSecretKey string

	// TreasuryAccount receives direct ledger deposits.
	TreasuryAccount string

	// PollInterval paces the deposit confirmation poller.
	PollInterval time.Duration

	// RateLimitPerMinute caps requests per user on the HTTP surface.
	RateLimitPerMinute int

	// CORSAllowedOrigins lists the origins the HTTP surface answers.
	CORSAllowedOrigins []string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Simulation replaces the backing store, ledger network and payment
	// gateway with in-process fakes. For local development only.
	Simulation bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:         envOr("WALLET_LISTEN_ADDR", ":8090"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseKey:        os.Getenv("SUPABASE_KEY"),
		ChainNodeURL:       os.Getenv("CHAIN_NODE_URL"),
		ChainRelayURL:      os.Getenv("CHAIN_RELAY_URL"),
		PaystackSecretKey:  os.Getenv("PAYSTACK_SECRET_KEY"),
		TreasuryAccount:    envOr("TREASURY_ACCOUNT", "blurttok.treasury"),
		PollInterval:       15 * time.Second,
		RateLimitPerMinute: 60,
		CORSAllowedOrigins: strings.Split(envOr("CORS_ALLOWED_ORIGINS", "*"), ","),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		Simulation:         os.Getenv("SIMULATION_MODE") == "true",
	}

	if v := os.Getenv("DEPOSIT_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse DEPOSIT_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Simulation {
		return nil
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseKey == "" {
		return fmt.Errorf("SUPABASE_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
