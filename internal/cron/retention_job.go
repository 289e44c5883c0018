package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/livo-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	outboxRetentionDays = 30
	outboxMinAttempts   = 5
)

type RetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Outbox        outboxRetentionRepo
	GatewayEvents gatewayEventPruner
	Retention     int
	MinAttempts   int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type gatewayEventPruner interface {
	DeleteGatewayEventsBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewRetentionJob builds the daily cleanup of published outbox rows and old
// webhook delivery ids.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	return &retentionJob{
		logg:          params.Logger,
		db:            params.DB,
		outbox:        params.Outbox,
		gatewayEvents: params.GatewayEvents,
		retention:     retention,
		minAttempts:   minAttempts,
		now:           time.Now,
	}, nil
}

type retentionJob struct {
	logg          *logger.Logger
	db            txRunner
	outbox        outboxRetentionRepo
	gatewayEvents gatewayEventPruner
	retention     int
	minAttempts   int
	now           func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Interval() time.Duration { return 24 * time.Hour }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var outboxRows, eventRows int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		if err != nil {
			return err
		}
		outboxRows = rows
		if j.gatewayEvents == nil {
			return nil
		}
		rows, err = j.gatewayEvents.DeleteGatewayEventsBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		eventRows = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("retention cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"retention_days":       j.retention,
		"min_attempts":         j.minAttempts,
		"outbox_rows_deleted":  outboxRows,
		"gateway_rows_deleted": eventRows,
	})
	j.logg.Info(logCtx, "retention cleanup complete")
	return nil
}
