// Package main runs the wallet layer daemon: the REST surface over the
// wallet orchestration services.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blurttok/wallet_layer/internal/app"
	"github.com/blurttok/wallet_layer/internal/config"
	"github.com/blurttok/wallet_layer/internal/httpapi"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides WALLET_LISTEN_ADDR)")
	simulation := flag.Bool("simulation", false, "Run against in-process fakes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("walletd").Fatal("invalid configuration", "error", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *simulation {
		cfg.Simulation = true
	}

	log := logger.New("walletd", cfg.LogLevel)
	log.Info("starting wallet layer",
		"addr", cfg.ListenAddr,
		"simulation", cfg.Simulation)

	application, err := app.New(cfg, app.Collaborators{}, log)
	if err != nil {
		log.Fatal("application wiring failed", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewHandler(application, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("session shutdown incomplete")
	}
	log.Info("wallet layer stopped")
}
