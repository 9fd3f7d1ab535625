// Package app holds the start-up wiring shared by the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/config"
	"github.com/ariefcatur/go-cart-reservations/internal/memstore"
	"github.com/ariefcatur/go-cart-reservations/internal/postgres"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// OpenStore connects the configured store. close releases it and is never nil.
func OpenStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s, err := memstore.New()
		if err != nil {
			return nil, func() {}, err
		}
		log.Warn("using in-memory store, data is lost on exit")
		return s, func() {}, nil
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, fmt.Errorf("db connect: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return &postgres.Store{DB: pool}, pool.Close, nil
	}
}
