package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/livo-backend/internal/bookings"
	consumer "github.com/angelmondragon/livo-backend/internal/consumers/payments"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/internal/payments"
	"github.com/angelmondragon/livo-backend/pkg/bootstrap"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

func main() {
	app, err := bootstrap.Load("worker")
	if err != nil {
		app.Exit(context.Background(), "failed to load config", err)
	}
	ctx, stop := app.SignalContext()
	defer stop()

	service, err := build(ctx, app)
	if err != nil {
		app.Exit(ctx, "failed to start worker", err)
	}
	app.Logger.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Exit(ctx, "worker stopped unexpectedly", err)
	}
	app.Close()
	app.Logger.Info(ctx, "worker shutting down gracefully")
}

func build(ctx context.Context, app *bootstrap.App) (*Service, error) {
	cfg := app.Config
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return nil, err
	}
	pubsubClient, err := app.PubSub(ctx)
	if err != nil {
		return nil, err
	}
	squareClient, err := square.NewClient(ctx, cfg.Square, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap square: %w", err)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:          payments.NewRepository(dbClient.DB()),
		Bookings:      bookings.NewRepository(dbClient.DB()),
		Inventory:     inventory.NewRepository(dbClient.DB()),
		TxRunner:      dbClient,
		Outbox:        outbox.NewService(outbox.NewRepository(dbClient.DB()), app.Logger),
		Idempotency:   redisClient,
		Gateway:       payments.NewSquareGateway(squareClient),
		Logger:        app.Logger,
		Metrics:       metrics.NewBookingMetrics(app.Registerer()),
		Config:        cfg.Booking,
		SigningSecret: cfg.Square.ClientSigningSecret,
		Currency:      cfg.Square.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency manager: %w", err)
	}
	paymentConsumer, err := consumer.NewConsumer(
		paymentService,
		manager,
		app.Logger,
		pubsubClient.PaymentSubscription(),
		pubsubClient.RefundSubscription(),
	)
	if err != nil {
		return nil, fmt.Errorf("payment consumer: %w", err)
	}

	if err := app.ServeMetrics(ctx); err != nil {
		return nil, err
	}
	return NewService(ServiceParams{
		Logger:          app.Logger,
		DB:              dbClient,
		Redis:           redisClient,
		PubSub:          pubsubClient,
		PaymentConsumer: paymentConsumer,
	})
}
