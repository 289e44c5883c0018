package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/angelmondragon/livo-backend/api/routes"
	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/internal/payments"
	"github.com/angelmondragon/livo-backend/internal/rooms"
	"github.com/angelmondragon/livo-backend/pkg/auth"
	"github.com/angelmondragon/livo-backend/pkg/bootstrap"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/square"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	app, err := bootstrap.Load("api")
	if err != nil {
		app.Exit(context.Background(), "failed to load config", err)
	}
	ctx, stop := app.SignalContext()
	defer stop()

	server, err := build(ctx, app)
	if err != nil {
		app.Exit(ctx, "failed to start api", err)
	}
	ctx = app.Logger.WithFields(ctx, map[string]any{"addr": server.Addr, "instance": instanceID()})
	app.Logger.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Exit(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error(ctx, "api server shutdown failed", err)
		}
		app.Logger.Info(ctx, "api server shutting down gracefully")
	}
	app.Close()
}

func build(ctx context.Context, app *bootstrap.App) (*http.Server, error) {
	cfg := app.Config
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokens(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("jwt verifier: %w", err)
	}
	squareClient, err := square.NewClient(ctx, cfg.Square, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap square: %w", err)
	}

	bookingMetrics := metrics.NewBookingMetrics(app.Registerer())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), app.Logger)
	bookingRepo := bookings.NewRepository(dbClient.DB())
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	roomRepo := rooms.NewRepository(dbClient.DB())

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:        bookingRepo,
		Inventory:   inventoryRepo,
		Rooms:       roomRepo,
		TxRunner:    dbClient,
		Outbox:      outboxService,
		Idempotency: redisClient,
		Logger:      app.Logger,
		Metrics:     bookingMetrics,
		Config:      cfg.Booking,
		Location:    cfg.App.Location(),
	})
	if err != nil {
		return nil, fmt.Errorf("booking service: %w", err)
	}

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:        inventoryRepo,
		Rooms:       roomRepo,
		TxRunner:    dbClient,
		Expirer:     bookingService,
		Logger:      app.Logger,
		Location:    cfg.App.Location(),
		HorizonDays: cfg.Booking.InventoryHorizonDay,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:          payments.NewRepository(dbClient.DB()),
		Bookings:      bookingRepo,
		Inventory:     inventoryRepo,
		TxRunner:      dbClient,
		Outbox:        outboxService,
		Idempotency:   redisClient,
		Gateway:       payments.NewSquareGateway(squareClient),
		Logger:        app.Logger,
		Metrics:       bookingMetrics,
		Config:        cfg.Booking,
		SigningSecret: cfg.Square.ClientSigningSecret,
		Currency:      cfg.Square.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	return &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:     cfg,
			Logger:     app.Logger,
			DB:         dbClient,
			Redis:      redisClient,
			Bookings:   bookingService,
			Payments:   paymentService,
			Inventory:  inventoryService,
			OutboxDLQ:  outbox.NewDLQRepository(dbClient.DB()),
			Square:     squareClient,
			Tokens:     tokens,
			Gatherer:   app.Gatherer(),
			Registerer: app.Registerer(),
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}

func instanceID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "local"
}
