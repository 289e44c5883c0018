package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
)

const (
	defaultSessionTTL     = 10 * time.Minute
	defaultSweepPageSize  = 50
	defaultSweepMaxPerRun = 2000
	defaultSweepInterval  = time.Minute
)

// BookingExpiryJobParams configure the stale booking sweep.
type BookingExpiryJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Bookings    staleBookingReader
	Expirer     bookingExpirer
	Metrics     *metrics.BookingMetrics
	SessionTTL  time.Duration
	PageSize    int
	MaxPerRun   int
	Interval    time.Duration
	LockTimeout time.Duration
}

type staleBookingReader interface {
	ListStale(ctx context.Context, cutoff time.Time, exclude []uuid.UUID, limit int) ([]models.Booking, error)
}

type bookingExpirer interface {
	Expire(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (bool, error)
}

// NewBookingExpiryJob builds the job that returns inventory held by
// abandoned booking sessions.
func NewBookingExpiryJob(params BookingExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("booking expirer required")
	}
	job := &bookingExpiryJob{
		logg:        params.Logger,
		db:          params.DB,
		bookings:    params.Bookings,
		expirer:     params.Expirer,
		metrics:     params.Metrics,
		sessionTTL:  params.SessionTTL,
		pageSize:    params.PageSize,
		maxPerRun:   params.MaxPerRun,
		interval:    params.Interval,
		lockTimeout: params.LockTimeout,
		now:         time.Now,
	}
	if job.sessionTTL <= 0 {
		job.sessionTTL = defaultSessionTTL
	}
	if job.pageSize <= 0 {
		job.pageSize = defaultSweepPageSize
	}
	if job.maxPerRun <= 0 {
		job.maxPerRun = defaultSweepMaxPerRun
	}
	if job.interval <= 0 {
		job.interval = defaultSweepInterval
	}
	return job, nil
}

type bookingExpiryJob struct {
	logg        *logger.Logger
	db          txRunner
	bookings    staleBookingReader
	expirer     bookingExpirer
	metrics     *metrics.BookingMetrics
	sessionTTL  time.Duration
	pageSize    int
	maxPerRun   int
	interval    time.Duration
	lockTimeout time.Duration
	now         func() time.Time
}

func (j *bookingExpiryJob) Name() string { return "booking-expiry" }

func (j *bookingExpiryJob) Interval() time.Duration { return j.interval }

// Run expires in-flight bookings idle for longer than the session TTL. Each
// page commits on its own; a booking that fails is rolled back to its
// savepoint and left out of later pages in this run.
func (j *bookingExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.sessionTTL)
	var (
		errs      []error
		skipped   []uuid.UUID
		processed int
		expired   int
	)
	for processed < j.maxPerRun {
		limit := min(j.pageSize, j.maxPerRun-processed)
		page, err := j.bookings.ListStale(ctx, cutoff, skipped, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("list stale bookings: %w", err))
			break
		}
		if len(page) == 0 {
			break
		}
		pageExpired, failed, err := j.expirePage(ctx, page)
		expired += pageExpired
		skipped = append(skipped, failed...)
		if err != nil {
			errs = append(errs, err)
		}
		processed += len(page)
		if len(page) < limit {
			break
		}
	}
	j.metrics.AddTransitions(enums.BookingStatusExpired.String(), expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"processed": processed,
		"expired":   expired,
		"skipped":   len(skipped),
	})
	j.logg.Info(logCtx, "booking expiry sweep complete")
	return multierr.Combine(errs...)
}

func (j *bookingExpiryJob) expirePage(ctx context.Context, page []models.Booking) (int, []uuid.UUID, error) {
	var (
		expired int
		failed  []uuid.UUID
		errs    []error
	)
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		if j.lockTimeout > 0 {
			if err := db.SetLockTimeout(tx, j.lockTimeout); err != nil {
				return err
			}
		}
		for i, booking := range page {
			savepoint := fmt.Sprintf("expire_%d", i)
			if err := tx.SavePoint(savepoint).Error; err != nil {
				return err
			}
			ok, err := j.expirer.Expire(ctx, tx, booking.ID, bookings.ReasonSessionTimeout)
			if err != nil {
				if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
					return rbErr
				}
				failed = append(failed, booking.ID)
				errs = append(errs, fmt.Errorf("expire booking %s: %w", booking.ID, err))
				j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "failed to expire booking", err)
				continue
			}
			if ok {
				expired++
			}
		}
		return nil
	})
	if err != nil {
		// the whole page rolled back
		ids := make([]uuid.UUID, 0, len(page))
		for _, booking := range page {
			ids = append(ids, booking.ID)
		}
		return 0, ids, fmt.Errorf("expire booking page: %w", err)
	}
	return expired, failed, multierr.Combine(errs...)
}
