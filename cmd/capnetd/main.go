// Command capnetd runs the capability enforcement HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Connerlevi/capnet/pkg/api"
	"github.com/Connerlevi/capnet/pkg/config"
	"github.com/Connerlevi/capnet/pkg/enforcement"
	"github.com/Connerlevi/capnet/pkg/issuer"
	"github.com/Connerlevi/capnet/pkg/store"
)

func main() {
	os.Exit(Run())
}

// Run wires config, store, issuer, enforcement engine, and HTTP server
// together and blocks until SIGINT/SIGTERM, then drains in-flight
// requests before returning.
func Run() int {
	cfg := config.Load()

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	s, err := store.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Error("store: failed to open", "error", err)
		return 1
	}

	iss := issuer.New(s, cfg.IssuerID, logger)
	eng := enforcement.New(s, logger)
	srv := api.New(s, iss, eng, logger)

	rl, stopRateLimiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer stopRateLimiter()

	handler := api.Chain(srv.Routes(),
		api.AccessLog(logger),
		api.CORS(cfg.AllowedOrigins),
		rl.RateLimit,
		api.MaxBody(cfg.MaxBodyBytes),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("capnetd: listening", "addr", cfg.Addr, "data_dir", cfg.DataDir)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("capnetd: server failed", "error", err)
			return 1
		}
	case sig := <-sigCh:
		logger.Info("capnetd: shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("capnetd: graceful shutdown failed", "error", err)
			return 1
		}
	}

	fmt.Fprintln(os.Stdout, "capnetd: stopped")
	return 0
}
