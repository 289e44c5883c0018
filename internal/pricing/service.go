package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

const defaultPageSize = 365

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the repricing service.
type ServiceParams struct {
	Repo     inventory.Repository
	TxRunner txRunner
	Logger   *logger.Logger
	Chain    Chain
	PageSize int
	Location *time.Location
	Now      func() time.Time
}

// Service recomputes dynamic prices for bookable inventory.
type Service struct {
	repo     inventory.Repository
	tx       txRunner
	logg     *logger.Logger
	chain    Chain
	pageSize int
	loc      *time.Location
	now      func() time.Time
}

// Result summarises one repricing pass.
type Result struct {
	Scanned int
	Updated int
	Failed  int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	chain := params.Chain
	if len(chain) == 0 {
		chain = DefaultChain()
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.TxRunner,
		logg:     params.Logger,
		chain:    chain,
		pageSize: pageSize,
		loc:      loc,
		now:      now,
	}, nil
}

// Reprice walks every open, future cell with spare capacity in id order and
// writes the chained price, never below the room's base price. Each page
// commits on its own; a failing cell is logged and skipped.
func (s *Service) Reprice(ctx context.Context) (Result, error) {
	var (
		result Result
		after  *uuid.UUID
		errs   error
	)
	today := inventory.Day(s.now(), s.loc)

	for {
		var scanned int
		var last uuid.UUID
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			rows, err := repo.ListRepricingPage(ctx, today, after, s.pageSize)
			if err != nil {
				return err
			}
			scanned = len(rows)
			for _, row := range rows {
				last = row.ID
				price := s.chain.Price(row.BasePrice, Input{
					Date:        row.Date,
					Today:       today,
					TotalCount:  row.TotalCount,
					BookedCount: row.BookedCount,
					SurgeFactor: row.SurgeFactor,
				})
				if price.LessThan(row.BasePrice) {
					price = row.BasePrice
				}
				if price.Equal(row.Price) {
					continue
				}
				if err := repo.UpdatePrice(ctx, row.ID, price); err != nil {
					result.Failed++
					errs = multierr.Append(errs, fmt.Errorf("cell %s: %w", row.ID, err))
					if s.logg != nil {
						s.logg.Error(s.logg.WithField(ctx, "cell_id", row.ID.String()), "failed to update cell price", err)
					}
					continue
				}
				result.Updated++
			}
			return nil
		})
		if err != nil {
			return result, multierr.Append(errs, fmt.Errorf("repricing page: %w", err))
		}
		if scanned == 0 {
			break
		}
		result.Scanned += scanned
		cursor := last
		after = &cursor
		if scanned < s.pageSize {
			break
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"scanned": result.Scanned,
			"updated": result.Updated,
			"failed":  result.Failed,
		})
		s.logg.Info(logCtx, "inventory repricing finished")
	}
	return result, errs
}
