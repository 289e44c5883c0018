package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/internal/cron"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/internal/payments"
	"github.com/angelmondragon/livo-backend/internal/pricing"
	"github.com/angelmondragon/livo-backend/pkg/bootstrap"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
)

const (
	leaseNameFormat = "cron-worker:%s"
	leaseTTL        = 5 * time.Minute
)

func main() {
	app, err := bootstrap.Load("cron-worker")
	if err != nil {
		app.Exit(context.Background(), "failed to load config", err)
	}
	ctx, stop := app.SignalContext()
	defer stop()

	service, err := build(ctx, app)
	if err != nil {
		app.Exit(ctx, "failed to start cron worker", err)
	}
	app.Logger.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Exit(ctx, "cron worker stopped unexpectedly", err)
	}
	app.Close()
	app.Logger.Info(ctx, "cron worker shutting down gracefully")
}

func build(ctx context.Context, app *bootstrap.App) (*cron.Service, error) {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return nil, err
	}
	lease, err := cron.NewRedisLease(redisClient, redisClient.LockKey(leaseName(app.Config.App.Env)), leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("schedule lease: %w", err)
	}
	registry, err := buildRegistry(app.Config, app.Logger, dbClient, metrics.NewBookingMetrics(app.Registerer()))
	if err != nil {
		return nil, err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   app.Logger,
		Registry: registry,
		Lease:    lease,
		Metrics:  metrics.NewCronJobMetrics(app.Registerer()),
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}
	if err := app.ServeMetrics(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

func leaseName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(leaseNameFormat, env)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, bookingMetrics *metrics.BookingMetrics) (*cron.Registry, error) {
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	bookingRepo := bookings.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	expiryJob, err := cron.NewBookingExpiryJob(cron.BookingExpiryJobParams{
		Logger:      logg,
		DB:          dbClient,
		Bookings:    bookingRepo,
		Expirer:     bookings.NewExpirer(bookingRepo, inventoryRepo, outboxService, nil),
		Metrics:     bookingMetrics,
		SessionTTL:  cfg.Booking.SessionTTL,
		PageSize:    cfg.Booking.SweepPageSize,
		MaxPerRun:   cfg.Booking.SweepMaxPerRun,
		Interval:    cfg.Booking.SweepInterval,
		LockTimeout: cfg.Booking.LockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("booking expiry job: %w", err)
	}

	pricingService, err := pricing.NewService(pricing.ServiceParams{
		Repo:     inventoryRepo,
		TxRunner: dbClient,
		Logger:   logg,
		PageSize: cfg.Booking.RepricingPageSize,
		Location: cfg.App.Location(),
	})
	if err != nil {
		return nil, fmt.Errorf("pricing service: %w", err)
	}
	repricingJob, err := cron.NewRepricingJob(cron.RepricingJobParams{
		Logger:   logg,
		Pricing:  pricingService,
		Interval: cfg.Booking.RepricingInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("repricing job: %w", err)
	}

	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Outbox:        outbox.NewRepository(dbClient.DB()),
		GatewayEvents: payments.NewRepository(dbClient.DB()),
	})
	if err != nil {
		return nil, fmt.Errorf("retention job: %w", err)
	}

	return cron.NewRegistry(expiryJob, repricingJob, retentionJob)
}
