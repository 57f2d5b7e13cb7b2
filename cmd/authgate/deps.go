// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the Postgres pool.
	// Default: store.OpenPool
	DatabaseFactory func(ctx context.Context, dsn string, cfg store.PoolConfig) (Database, error)

	// RedisFactory connects to Redis.
	// Default: authredis.NewClient
	RedisFactory func(ctx context.Context, url string) (RedisClient, error)

	// MigratorFactory creates the migrator used for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(dsn string) (AutoMigrator, error)

	// AutoMigrateGetter reports whether to migrate on startup.
	// Default: parseAutoMigrate
	AutoMigrateGetter func() bool

	// ListenerFactory creates the public API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, registry *prometheus.Registry, logger *slog.Logger, checks ...observability.ReadinessCheck) ObservabilityServer
}

// Database is the subset of *pgxpool.Pool used by serve.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// RedisClient is the subset of *goredis.Client used by serve.
type RedisClient interface {
	goredis.Cmdable
	Close() error
}

// AutoMigrator is the subset of *store.Migrator used for auto-migration.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
