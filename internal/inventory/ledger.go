package inventory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
)

// The ledger helpers below expect cells already locked by LockRange or
// LockOpenRange in the same transaction as repo.

// ReleaseReserved returns n reserved units on every cell, never below zero.
func ReleaseReserved(ctx context.Context, repo Repository, cells []models.InventoryCell, n int) error {
	for _, cell := range cells {
		reserved := max(cell.ReservedCount-n, 0)
		if err := repo.UpdateCounters(ctx, cell.ID, cell.BookedCount, reserved); err != nil {
			return fmt.Errorf("release reserved on %s: %w", cell.ID, err)
		}
	}
	return nil
}

// CommitReserved moves n units from reserved to booked. Booked is capped so
// booked + reserved stays within total even if the hold was already reclaimed.
func CommitReserved(ctx context.Context, repo Repository, cells []models.InventoryCell, n int) error {
	for _, cell := range cells {
		reserved := max(cell.ReservedCount-n, 0)
		booked := min(cell.BookedCount+n, cell.TotalCount-reserved)
		if err := repo.UpdateCounters(ctx, cell.ID, booked, reserved); err != nil {
			return fmt.Errorf("commit reserved on %s: %w", cell.ID, err)
		}
	}
	return nil
}

// ReleaseBooked returns n booked units on every cell, never below zero.
func ReleaseBooked(ctx context.Context, repo Repository, cells []models.InventoryCell, n int) error {
	for _, cell := range cells {
		booked := max(cell.BookedCount-n, 0)
		if err := repo.UpdateCounters(ctx, cell.ID, booked, cell.ReservedCount); err != nil {
			return fmt.Errorf("release booked on %s: %w", cell.ID, err)
		}
	}
	return nil
}
