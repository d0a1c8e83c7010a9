// Package main runs the wallet tracker API server:
// - /api/tokens, /api/find, /api/verify: JSON command surface
// - /ws/find: streaming search with per-page progress
// - /health, /status, /metrics
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

	"solana-wallet-tracker/internal/api"
	"solana-wallet-tracker/internal/app"
	"solana-wallet-tracker/internal/config"
)

func main() {
	logger := app.NewLogger("server")

	envFile := flag.String("env-file", ".env", "Environment file to load")
	configFile := flag.String("config", "", "Config file (yaml or json); default: first of config.yaml, config.yml, config.json")
	addr := flag.String("addr", "", "HTTP listen address (default HTTP_ADDR or :8080)")
	backend := flag.String("backend", "", "Holder ledger backend: helius, postgres, clickhouse (default LEDGER_BACKEND)")
	tolerance := flag.Float64("tolerance", 0, "Relative amount tolerance, 0.001 = 0.1% (default TOKEN_AMOUNT_TOLERANCE)")
	maxPages := flag.Int("max-pages", 0, "Maximum holder pages per search (default MAX_HOLDER_PAGES)")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{EnvFile: *envFile, ConfigFile: *configFile})
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Flags override file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.HTTPAddr = *addr
		case "backend":
			cfg.Backend = *backend
		case "tolerance":
			cfg.Tolerance = *tolerance
		case "max-pages":
			cfg.MaxHolderPages = *maxPages
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open providers: %v", err)
	}
	defer providers.Close()

	m := providers.Matcher(cfg, app.NewLogger("matcher"))
	srv := api.NewServer(cfg.HTTPAddr, m, providers.Resolver,
		api.WithLogger(app.NewLogger("api")),
		api.WithBackend(providers.Backend),
	)

	logger.Printf("Backend: %s, tolerance: %.4f, max pages: %d", providers.Backend, cfg.Tolerance, cfg.MaxHolderPages)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Graceful shutdown failed: %v", err)
	}
	logger.Println("Shutdown complete")
}
