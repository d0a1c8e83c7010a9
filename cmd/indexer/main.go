// Package main snapshots the holders of one or more mints from Helius into
// the Postgres or ClickHouse holder index, so the server can run with
// -backend postgres|clickhouse.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-wallet-tracker/internal/app"
	"solana-wallet-tracker/internal/config"
	"solana-wallet-tracker/internal/indexer"
	"solana-wallet-tracker/internal/observability"
)

func main() {
	mints := flag.String("mint", "", "Comma-separated mint addresses to index")
	backend := flag.String("backend", config.BackendPostgres, "Holder index backend: postgres or clickhouse")
	maxPages := flag.Int("max-pages", 0, "Maximum holder pages per mint (default MAX_HOLDER_PAGES)")
	envFile := flag.String("env-file", ".env", "Environment file to load")
	configFile := flag.String("config", "", "Config file (yaml or json)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := app.NewLogger("indexer")

	mintList := splitMints(*mints)
	if len(mintList) == 0 {
		logger.Fatal("--mint is required")
	}

	cfg, err := config.Load(config.LoadOptions{EnvFile: *envFile, ConfigFile: *configFile})
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.HeliusAPIKey == "" && cfg.HeliusRPCURL == "" {
		logger.Fatal("HELIUS_API_KEY is required to read holders")
	}
	if *maxPages > 0 {
		cfg.MaxHolderPages = *maxPages
	}
	cfg.Backend = *backend
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping after the current page...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	index, closeIndex, err := app.OpenIndex(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open holder index: %v", err)
	}
	defer closeIndex()

	x := indexer.New(app.NewHelius(cfg), index,
		indexer.WithMaxPages(cfg.MaxHolderPages),
		indexer.WithPageSize(cfg.HolderPageSize),
		indexer.WithLogger(logger),
	)

	failed := 0
	for _, mint := range mintList {
		stats, err := x.Snapshot(ctx, mint)
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			logger.Printf("Failed to index %s: %v", mint, err)
			failed++
			continue
		}
		logger.Printf("%s: %d pages, %d fetched, %d written, %d pruned, %d indexed (decimals %d)",
			mint, stats.Pages, stats.Fetched, stats.Written, stats.Pruned, stats.Indexed, stats.Supply.Decimals)
	}

	if failed > 0 {
		closeIndex()
		logger.Fatalf("%d of %d mints failed", failed, len(mintList))
	}
	logger.Println("Indexing complete")
}

func splitMints(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
