package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/livo-backend/internal/pricing"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

const defaultRepricingInterval = time.Hour

type repricer interface {
	Reprice(ctx context.Context) (pricing.Result, error)
}

// RepricingJobParams configure the periodic inventory repricing.
type RepricingJobParams struct {
	Logger   *logger.Logger
	Pricing  repricer
	Interval time.Duration
}

func NewRepricingJob(params RepricingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultRepricingInterval
	}
	return &repricingJob{logg: params.Logger, pricing: params.Pricing, interval: interval}, nil
}

type repricingJob struct {
	logg     *logger.Logger
	pricing  repricer
	interval time.Duration
}

func (j *repricingJob) Name() string { return "inventory-repricing" }

func (j *repricingJob) Interval() time.Duration { return j.interval }

func (j *repricingJob) Run(ctx context.Context) error {
	result, err := j.pricing.Reprice(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": result.Scanned,
		"updated": result.Updated,
		"failed":  result.Failed,
	})
	j.logg.Info(logCtx, "inventory repricing complete")
	if err != nil {
		return fmt.Errorf("reprice inventory: %w", err)
	}
	return nil
}
