// Package bootstrap holds the startup and teardown steps shared by the livo
// binaries: environment loading, config, logging, and the lifetime of the
// infrastructure clients each binary opens.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/livo-backend/pkg/bigquery"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/migrate"
	"github.com/angelmondragon/livo-backend/pkg/pubsub"
	"github.com/angelmondragon/livo-backend/pkg/redis"
)

const metricsNamespace = "livo"

type closer struct {
	name string
	fn   func() error
}

// App is one running binary. Clients opened through it are closed in reverse
// order by Close.
type App struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	closers    []closer
	exit       func(code int)
}

// Load reads .env (when present) and the environment, then builds the
// service logger. The returned App is usable for logging even when the
// config fails to load.
func Load(service string) (*App, error) {
	app := &App{
		Service:    service,
		Logger:     logger.New(logger.Options{ServiceName: service}),
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		exit:       os.Exit,
	}
	if err := godotenv.Load(); err != nil {
		app.Logger.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return app, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service
	app.Config = cfg
	app.Logger = logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	return app, nil
}

// Registerer is where the binary's collectors go.
func (a *App) Registerer() prometheus.Registerer { return a.registerer }

// Gatherer is what /metrics serves.
func (a *App) Gatherer() prometheus.Gatherer { return a.gatherer }

// SignalContext is cancelled on SIGINT or SIGTERM and carries the service
// log fields.
func (a *App) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return a.withFields(ctx), stop
}

func (a *App) withFields(ctx context.Context) context.Context {
	fields := map[string]any{"serviceKind": a.Service}
	if a.Config != nil {
		fields["env"] = a.Config.App.Env
	}
	return a.Logger.WithFields(ctx, fields)
}

// OnClose registers fn to run during Close.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases everything registered with OnClose, newest first. It is
// safe to call more than once.
func (a *App) Close() {
	ctx := a.withFields(context.Background())
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Error(a.Logger.WithField(ctx, "resource", c.name), "close failed", err)
		}
	}
	a.closers = nil
}

// Exit logs err, closes open clients and terminates the process.
func (a *App) Exit(ctx context.Context, msg string, err error) {
	a.Logger.Error(ctx, msg, err)
	a.Close()
	a.exit(1)
}

// Database opens Postgres, exports its pool stats and applies dev
// migrations when auto-migrate is on.
func (a *App) Database(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, a.Config.DB, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	a.OnClose("database", client.Close)
	if err := client.RegisterMetrics(a.registerer, metricsNamespace); err != nil {
		a.Logger.Error(ctx, "db pool metrics not registered", err)
	}
	if err := migrate.MaybeRunDev(ctx, a.Config, a.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	a.OnClose("redis", client.Close)
	return client, nil
}

func (a *App) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, a.Config.GCP, a.Config.PubSub, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	a.OnClose("pubsub", client.Close)
	return client, nil
}

func (a *App) BigQuery(ctx context.Context) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, a.Config.GCP, a.Config.BigQuery, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap bigquery: %w", err)
	}
	a.OnClose("bigquery", client.Close)
	return client, nil
}

// ServeMetrics exposes /metrics on the configured metrics address until ctx
// is done. An empty address disables the endpoint.
func (a *App) ServeMetrics(ctx context.Context) error {
	if _, err := metrics.Serve(ctx, a.Config.Service.MetricsAddr, a.gatherer, a.Logger); err != nil {
		return fmt.Errorf("metrics endpoint: %w", err)
	}
	return nil
}
