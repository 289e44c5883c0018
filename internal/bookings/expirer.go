package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
)

const (
	ReasonSessionTimeout = "Booking session timed out"
	ReasonRoomRemoved    = "Room removed from inventory"
	ReasonHotelRemoved   = "Hotel removed from inventory"
)

// Expirer returns the reserved units of in-flight bookings and marks them EXPIRED.
type Expirer struct {
	bookings  Repository
	inventory inventory.Repository
	outbox    outbox.Emitter
	now       func() time.Time
}

func NewExpirer(bookings Repository, inv inventory.Repository, emitter outbox.Emitter, now func() time.Time) *Expirer {
	if now == nil {
		now = time.Now
	}
	return &Expirer{bookings: bookings, inventory: inv, outbox: emitter, now: now}
}

// Expire runs inside tx. It returns false without error when the booking has
// already left the in-flight states.
func (e *Expirer) Expire(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (bool, error) {
	repo := e.bookings.WithTx(tx)
	booking, err := repo.FindByID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if !booking.Status.IsInFlight() {
		return false, nil
	}

	invRepo := e.inventory.WithTx(tx)
	cells, err := invRepo.LockRange(ctx, booking.RoomID, booking.StartDate, booking.EndDate)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock booking inventory")
	}
	// the lock may have waited on a confirmation; re-read before deciding
	booking, err = repo.FindByID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if !booking.Status.IsInFlight() {
		return false, nil
	}
	if err := inventory.ReleaseReserved(ctx, invRepo, cells, booking.RoomsCount); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release reserved inventory")
	}
	if err := repo.UpdateStatus(ctx, booking.ID, booking.Version, enums.BookingStatusExpired); err != nil {
		return false, err
	}
	if e.outbox != nil {
		event := LifecycleEvent(*booking, enums.BookingStatusExpired, reason, nil, e.now().UTC())
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Expirer) expireAll(ctx context.Context, tx *gorm.DB, bookings []models.Booking, reason string) (int, error) {
	expired := 0
	for _, booking := range bookings {
		ok, err := e.Expire(ctx, tx, booking.ID, reason)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
