package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/federated/google"
	"github.com/MrEthical07/goCred/fieldcrypt"
	"github.com/MrEthical07/goCred/httpapi"
	"github.com/MrEthical07/goCred/internal/settings"
	"github.com/MrEthical07/goCred/metrics/export/prometheus"
	"github.com/MrEthical07/goCred/notify"
	"github.com/MrEthical07/goCred/revocation"
	"github.com/MrEthical07/goCred/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gocred-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := settings.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()
	if err := postgres.Migrate(ctx, sqlDB); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	secrets, err := cfg.Secrets()
	if err != nil {
		return err
	}

	sender, err := newSender(cfg.SMTP, logger)
	if err != nil {
		return err
	}
	notifier := notify.NewDispatcher(notify.Config{BufferSize: 256}, sender, logger)
	defer notifier.Close()

	revocations := revocation.NewSQLStore(sqlDB)
	if cfg.Database.PurgeInterval > 0 {
		go revocations.RunPurger(ctx, cfg.Database.PurgeInterval, logger)
	}

	builder := goCred.New().
		WithConfig(cfg.EngineConfig()).
		WithSecrets(secrets).
		WithPrincipalStore(postgres.New(pool)).
		WithRevocationStore(revocations).
		WithRedis(rdb).
		WithNotifier(notifier).
		WithLogger(logger)

	if cfg.Security.EncryptionKey != "" {
		cipher, err := fieldcrypt.NewAESFromString(cfg.Security.EncryptionKey)
		if err != nil {
			return err
		}
		builder = builder.WithFieldCipher(cipher)
	}
	if cfg.Google.ClientID != "" {
		verifier, err := google.NewVerifier(cfg.Google.ClientID)
		if err != nil {
			return err
		}
		builder = builder.WithFederatedVerifier(verifier)
	}
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(goCred.NewSlogSink(logger.With("component", "audit")))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := httpapi.Options{SecureCookies: cfg.HTTP.SecureCookies}
	if cfg.Metrics.Enabled {
		opts.Metrics = prometheus.NewPrometheusExporter(engine).Handler()
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewRouter(engine, logger, opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg settings.LogSettings) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newSender falls back to logging messages when no SMTP host is configured.
func newSender(cfg settings.SMTPSettings, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Host == "" {
		logger.Warn("SMTP host not set; one-time codes are logged, not mailed")
		return notify.LogSender{Logger: logger}, nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		From:        cfg.From,
		ImplicitTLS: cfg.ImplicitTLS,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
