// Package app builds the long-lived providers shared by the binaries:
// the holder ledger for the configured backend and the token resolver.
package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"solana-wallet-tracker/internal/chainrpc"
	"solana-wallet-tracker/internal/config"
	"solana-wallet-tracker/internal/dexscreener"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/resolver"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/storage"
	chstore "solana-wallet-tracker/internal/storage/clickhouse"
	"solana-wallet-tracker/internal/storage/migrations"
	pgstore "solana-wallet-tracker/internal/storage/postgres"
)

// NewLogger returns a component logger in the format used across the binaries.
func NewLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}

// Providers holds the ledger and resolver built from one configuration.
type Providers struct {
	Backend  string
	Ledger   ledger.Source
	Resolver *resolver.Resolver
	cleanup  func()
}

// Open validates cfg and builds the providers. Database backends are
// migrated before use. Close releases them.
func Open(ctx context.Context, cfg config.Config) (*Providers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	src, cleanup, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Providers{
		Backend:  cfg.Backend,
		Ledger:   src,
		Resolver: NewResolver(cfg),
		cleanup:  cleanup,
	}, nil
}

// Matcher builds a matcher over the providers.
func (p *Providers) Matcher(cfg config.Config, logger *log.Logger) *matcher.Matcher {
	return matcher.New(cfg.MatcherConfig(), p.Resolver, p.Ledger, matcher.WithLogger(logger))
}

// Close releases database connections, if any.
func (p *Providers) Close() {
	if p.cleanup != nil {
		p.cleanup()
	}
}

// NewResolver builds the token resolver: DexScreener pairs enriched with
// supply from the public Solana RPC.
func NewResolver(cfg config.Config) *resolver.Resolver {
	pairs := dexscreener.NewClient(cfg.DexScreenerURL, cfg.TransportOptions(NewLogger("dexscreener"))...)
	supply := chainrpc.NewClient(cfg.SolanaRPCURL, cfg.TransportOptions(NewLogger("solana-rpc"))...)
	return resolver.New(pairs,
		resolver.WithSupplySource(supply),
		resolver.WithLogger(NewLogger("resolver")),
	)
}

// NewHelius builds the Helius ledger client.
func NewHelius(cfg config.Config) *solana.HTTPClient {
	return solana.NewHTTPClient(cfg.LedgerURL(), cfg.TransportOptions(NewLogger("helius"))...)
}

func openLedger(ctx context.Context, cfg config.Config) (ledger.Source, func(), error) {
	if cfg.Backend == config.BackendHelius {
		return NewHelius(cfg), func() {}, nil
	}
	return OpenIndex(ctx, cfg)
}

// OpenIndex connects to the database holder index selected by cfg.Backend
// and applies migrations.
func OpenIndex(ctx context.Context, cfg config.Config) (storage.HolderIndex, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pgstore.NewHolderIndex(pool), pool.Close, nil

	case config.BackendClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		return chstore.NewHolderIndex(conn), func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("backend %q is not a holder index", cfg.Backend)
	}
}
