// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	authpostgres "github.com/authgate/authgate/internal/auth/postgres"
	authredis "github.com/authgate/authgate/internal/auth/redis"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/mail"
	"github.com/authgate/authgate/internal/oauth"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/internal/web"
	"github.com/authgate/authgate/pkg/errutil"
)

// serviceName is the service label on every log record.
const serviceName = "authgate"

// shutdownTimeout bounds graceful shutdown, including the mail drain.
const shutdownTimeout = 15 * time.Second

// autoMigrateEnv disables startup migrations when set to a false value.
const autoMigrateEnv = "AUTHGATE_DB_AUTO_MIGRATE"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API serving local and federated sign-in, session
cookies, and email confirmation. Secrets are read from AUTHGATE_JWT_SECRET,
DATABASE_URL, REDIS_URL, GOOGLE_CLIENT_SECRET, and SMTP_PASSWORD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ResolvePath(configFile), cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file path (default: XDG_CONFIG_HOME/authgate/config.yaml if present)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps runs the server until ctx is done or a listener fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = withDefaultDeps(deps)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	logger.Info("starting authgate",
		"http_addr", cfg.HTTP.Addr,
		"origin", cfg.HTTP.Origin,
		"google_enabled", cfg.Google.ClientID != "",
		"smtp_enabled", cfg.Mail.SMTPHost != "",
	)

	if deps.AutoMigrateGetter() {
		if err := runAutoMigration(cfg.Secrets.DatabaseURL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Secrets.DatabaseURL, store.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	rdb, err := deps.RedisFactory(ctx, cfg.Secrets.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			logger.Warn("error closing redis client", "error", closeErr)
		}
	}()
	logger.Info("connected to redis")

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := dispatcher.Close(drainCtx); closeErr != nil {
			errutil.LogError(logger, "mail queue not drained", closeErr)
		}
	}()

	handler, err := newHandler(cfg, db, rdb, dispatcher, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		registry := observability.NewRegistry(auth.RegisterMetrics, mail.RegisterMetrics, web.RegisterMetrics)
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, registry, logger,
			observability.ReadinessCheck{Name: "postgres", Check: db.Ping},
			observability.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}},
		)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           handler.AccessLog(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpErrChan := make(chan error, 1)
	go func() {
		defer close(httpErrChan)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrChan <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, httpErrChan, "http")

	cmd.Println("Authgate started")
	logger.Info("authgate ready", "http_addr", listener.Addr().String())

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func withDefaultDeps(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.DatabaseFactory == nil {
		deps.DatabaseFactory = func(ctx context.Context, dsn string, cfg store.PoolConfig) (Database, error) {
			pool, err := store.OpenPool(ctx, dsn, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = func(ctx context.Context, url string) (RedisClient, error) {
			client, err := authredis.NewClient(ctx, url)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(dsn string) (AutoMigrator, error) {
			m, err := store.NewMigrator(dsn)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if deps.AutoMigrateGetter == nil {
		deps.AutoMigrateGetter = parseAutoMigrate
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, registry *prometheus.Registry, logger *slog.Logger, checks ...observability.ReadinessCheck) ObservabilityServer {
			return observability.NewServer(addr, registry, logger, checks...)
		}
	}
	return deps
}

// newDispatcher picks the SMTP sender when a relay is configured and the
// logging sender otherwise.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*mail.Dispatcher, error) {
	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.Mail.SMTPHost != "" {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Secrets.SMTPPassword,
		})
		if err != nil {
			return nil, err
		}
		sender = smtpSender
	}
	return mail.NewDispatcher(sender, mail.NewRenderer(), mail.DispatcherConfig{
		From:       cfg.Mail.From,
		Workers:    cfg.Mail.Workers,
		QueueSize:  cfg.Mail.QueueSize,
		MaxRetries: cfg.Mail.MaxRetries,
	}, logger)
}

// newHandler builds the auth services and the HTTP handler over them.
func newHandler(cfg *config.Config, db Database, rdb RedisClient, mailer auth.Mailer, logger *slog.Logger) (*web.Handler, error) {
	users := authpostgres.NewUserRepository(db)
	hasher := auth.NewArgon2idHasher()

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:     []byte(cfg.Secrets.JWTSecret),
		Issuer:     cfg.Token.Issuer,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	confirmation, err := auth.NewConfirmationWorkflow(users, authredis.NewConfirmationStore(rdb), mailer,
		auth.WithConfirmationTTL(cfg.Confirmation.TTL),
		auth.WithConfirmationLinkBase(cfg.HTTP.Origin),
		auth.WithConfirmationLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewSessionManager(users, hasher, issuer, confirmation,
		auth.WithSessionLogger(logger),
		auth.WithCookiePolicy(auth.CookiePolicy{
			Secure: cfg.HTTP.SecureCookies,
			Domain: cfg.HTTP.CookieDomain,
		}),
	)
	if err != nil {
		return nil, err
	}

	linking, err := auth.NewAccountLinkingService(users, sessions, cfg.HTTP.Origin, logger)
	if err != nil {
		return nil, err
	}

	var providers []oauth.Provider
	if cfg.Google.ClientID != "" {
		google, err := oauth.NewGoogleProvider(oauth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Secrets.GoogleClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, google)
	}

	return web.NewHandler(web.Config{
		Sessions:     sessions,
		Confirmation: confirmation,
		Linking:      linking,
		Providers:    oauth.NewRegistry(providers...),
		SecureCookie: cfg.HTTP.SecureCookies,
		Logger:       logger,
	})
}

// runAutoMigration applies pending migrations before the server starts.
func runAutoMigration(dsn string, factory func(string) (AutoMigrator, error)) error {
	m, err := factory(dsn)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("error closing migrator, connection may leak", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	slog.Info("database migrations applied")
	return nil
}

// parseAutoMigrate reads AUTHGATE_DB_AUTO_MIGRATE. Unset or unrecognized
// values enable auto-migration.
func parseAutoMigrate() bool {
	raw := strings.TrimSpace(os.Getenv(autoMigrateEnv))
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		slog.Warn("unrecognized auto-migrate value, migrating", "env", autoMigrateEnv, "value", raw)
		return true
	}
	return enabled
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
