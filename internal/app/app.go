// Package app turns configuration into the stores, export sinks and import
// service shared by cmd/server and cmd/catalogctl.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/blob"
	"github.com/JonMunkholm/testcatalog/internal/blob/fs"
	"github.com/JonMunkholm/testcatalog/internal/blob/s3"
	"github.com/JonMunkholm/testcatalog/internal/config"
	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/store/memory"
	"github.com/JonMunkholm/testcatalog/internal/store/postgres"
	"github.com/JonMunkholm/testcatalog/internal/store/sqlite"
)

// Backend is a record store that also persists and reads back sessions.
type Backend interface {
	core.TestStore
	core.AuditSink
	core.SessionReader
}

// Store is an opened Backend with its lifecycle hooks.
type Store struct {
	Backend
	Driver string

	ping  func(context.Context) error
	close func()
}

// Ping checks connectivity. The memory driver is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore opens the configured driver. Postgres schemas are migrated on open.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverMemory:
		return &Store{Backend: memory.New(), Driver: config.DriverMemory}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened sqlite store", "path", cfg.SQLitePath)
		return &Store{
			Backend: db,
			Driver:  config.DriverSQLite,
			ping:    db.Ping,
			close:   func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.URL, postgres.PoolConfig{
			MaxConns:        int32(cfg.MaxConns),
			MinConns:        int32(cfg.MinConns),
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		db := postgres.New(pool)
		if err := db.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("connected to postgres store", "max_conns", cfg.MaxConns)
		return &Store{
			Backend: db,
			Driver:  config.DriverPostgres,
			ping:    pool.Ping,
			close:   pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// OpenSink opens the configured export destination.
func OpenSink(ctx context.Context, cfg config.ExportConfig) (blob.Sink, error) {
	switch strings.ToLower(cfg.Sink) {
	case config.SinkFilesystem:
		sink, err := fs.New(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open export dir: %w", err)
		}
		return sink, nil
	case config.SinkS3:
		sink, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	return nil, fmt.Errorf("unknown export sink %q", cfg.Sink)
}

// NewService builds the import service over st. obs may be nil.
func NewService(st *Store, cfg config.ImportConfig, obs core.Observer) (*core.Service, error) {
	policy, ok := core.ParseDuplicatePolicy(cfg.DefaultPolicy)
	if !ok {
		return nil, fmt.Errorf("unknown duplicate policy %q", cfg.DefaultPolicy)
	}

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = core.DefaultMaxConcurrentImports
	}
	wait := cfg.MaxWaitTime
	if wait <= 0 {
		wait = core.DefaultMaxWaitTime
	}

	opts := []core.Option{
		core.WithLimiter(core.NewImportLimiter(limit, wait)),
		core.WithDefaultPolicy(policy),
		core.WithSessionTimeout(cfg.SessionTimeout),
	}
	if cfg.IDPrefix != "" {
		opts = append(opts, core.WithIDPrefix(cfg.IDPrefix))
	}
	if obs != nil {
		opts = append(opts, core.WithObserver(obs))
	}
	return core.NewService(st, st, opts...), nil
}
