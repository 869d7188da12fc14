// Command authcore serves the authentication API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/telemetry"
	"github.com/MrEthical07/authcore/mail"
	metricsotel "github.com/MrEthical07/authcore/metrics/export/otel"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/store/postgres"
)

const (
	connectTries   = 3
	connectInitial = 500 * time.Millisecond
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authcore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	log, err := setupLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pool, err := connect(ctx, log, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithStore(postgres.New(pool, cfg.DB.QueryTimeout)).
		WithLogger(log).
		WithMailer(mail.LogSender(log)).
		WithProfileFetcher(oauth.NewClient(nil)).
		WithExchanger(oauth.NewExchanger(nil, cfg.Providers())).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := engine.EnsureDefaultRoles(ctx); err != nil {
		return fmt.Errorf("default roles: %w", err)
	}

	exporter, err := metricsotel.NewExporter(tel.Meter("authcore"), engine)
	if err != nil {
		return fmt.Errorf("metrics exporter: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPServer.Address,
		Handler: httpapi.NewHandler(engine, log, httpapi.Options{
			ThrottleRPS:   cfg.HTTPServer.ThrottleRPS,
			ThrottleBurst: cfg.HTTPServer.ThrottleBurst,
		}),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, srv.Shutdown(sctx))
		errs = append(errs, engine.Close(sctx))
		errs = append(errs, exporter.Close())
		errs = append(errs, tel.Shutdown(sctx))
		return errors.Join(errs...)
	})
	return g.Wait()
}

// connect opens the Postgres pool, retrying transient failures with
// exponential backoff before giving up.
func connect(ctx context.Context, log *zap.Logger, db config.DB) (*pgxpool.Pool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = connectInitial

	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, db.URL, db.MaxConns)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(connectTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("postgres connect failed, retrying", zap.Error(err), zap.Duration("next", next))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func setupLogger(env string) (*zap.Logger, error) {
	switch env {
	case config.EnvProd:
		return zap.NewProduction()
	case config.EnvDev:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	default:
		return zap.NewDevelopment()
	}
}
