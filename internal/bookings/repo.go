package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/pagination"
)

// Repository persists bookings and their guests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDWithGuests(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, status enums.BookingStatus) error
	ReplaceGuests(ctx context.Context, bookingID uuid.UUID, guests []models.Guest) error
	FindPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	ListStale(ctx context.Context, cutoff time.Time, exclude []uuid.UUID, limit int) ([]models.Booking, error)
	ListInFlightByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Booking, error)
	ListInFlightByHotel(ctx context.Context, hotelID uuid.UUID) ([]models.Booking, error)
	ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Booking, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a booking repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, mapNotFound(err, "booking not found", "load booking")
	}
	return &booking, nil
}

func (r *repository) FindByIDWithGuests(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Guests", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, mapNotFound(err, "booking not found", "load booking")
	}
	return &booking, nil
}

// UpdateStatus is a compare-and-set on version. A concurrent writer that got
// there first makes this return CodeConflict.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, status enums.BookingStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update booking status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "booking was modified concurrently")
	}
	return nil
}

func (r *repository) ReplaceGuests(ctx context.Context, bookingID uuid.UUID, guests []models.Guest) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("booking_id = ?", bookingID).Delete(&models.Guest{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear guests")
	}
	if len(guests) == 0 {
		return nil
	}
	for i := range guests {
		guests[i].BookingID = bookingID
		if guests[i].ID == uuid.Nil {
			guests[i].ID = uuid.New()
		}
	}
	if err := db.Create(&guests).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert guests")
	}
	return nil
}

func (r *repository) FindPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&payment).Error; err != nil {
		return nil, mapNotFound(err, "payment not found", "load payment")
	}
	return &payment, nil
}

// ListStale returns in-flight bookings untouched since cutoff, oldest first.
func (r *repository) ListStale(ctx context.Context, cutoff time.Time, exclude []uuid.UUID, limit int) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", enums.InFlightBookingStatuses, cutoff)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}
	var bookings []models.Booking
	err := query.Order("updated_at ASC").Order("id ASC").Limit(limit).Find(&bookings).Error
	return bookings, err
}

func (r *repository) ListInFlightByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status IN ?", roomID, enums.InFlightBookingStatuses).
		Order("id ASC").
		Find(&bookings).Error
	return bookings, err
}

func (r *repository) ListInFlightByHotel(ctx context.Context, hotelID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("hotel_id = ? AND status IN ?", hotelID, enums.InFlightBookingStatuses).
		Order("room_id ASC").
		Order("id ASC").
		Find(&bookings).Error
	return bookings, err
}

// ListForUser pages a user's confirmed and cancelled bookings, latest stay
// first. It returns up to limit+1 rows.
func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []enums.BookingStatus{
			enums.BookingStatusConfirmed,
			enums.BookingStatusCancelled,
		})
	var bookings []models.Booking
	err := pagination.After(query, "start_date", cursor, limit).Find(&bookings).Error
	return bookings, err
}

func mapNotFound(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
