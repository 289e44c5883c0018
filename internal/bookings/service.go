package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/internal/rooms"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/pagination"
	"github.com/angelmondragon/livo-backend/pkg/redis"
)

const (
	idempotencyScope   = "booking"
	ReasonUserCancel   = "User Manually Cancelled Booking"
	defaultMaxNights   = 30
	defaultGateTTL     = 10 * time.Minute
	defaultLockTimeout = 3 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InitBookingInput is a reservation request. Dates are calendar dates.
type InitBookingInput struct {
	RoomID         uuid.UUID
	StartDate      time.Time
	EndDate        time.Time
	RoomsCount     int
	IdempotencyKey string
}

// GuestInput describes one guest staying under a booking.
type GuestInput struct {
	Name   string
	Gender enums.Gender
	Age    int
}

// ListResult is one page of a user's bookings.
type ListResult struct {
	Bookings   []models.Booking
	NextCursor string
}

// Service drives the booking lifecycle from reservation to cancellation.
type Service interface {
	InitBooking(ctx context.Context, userID uuid.UUID, input InitBookingInput) (*models.Booking, error)
	AddGuests(ctx context.Context, userID, bookingID uuid.UUID, guests []GuestInput) (*models.Booking, error)
	GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error)
	GetMyBookings(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error)
	ExpireInFlightForRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (int, error)
	ExpireInFlightForHotel(ctx context.Context, tx *gorm.DB, hotelID uuid.UUID) (int, error)
}

// ServiceParams wires the booking service.
type ServiceParams struct {
	Repo        Repository
	Inventory   inventory.Repository
	Rooms       rooms.Repository
	TxRunner    txRunner
	Outbox      outbox.Emitter
	Idempotency redis.IdempotencyStore
	Logger      *logger.Logger
	Metrics     *metrics.BookingMetrics
	Config      config.BookingConfig
	Location    *time.Location
	Now         func() time.Time
}

type service struct {
	repo        Repository
	inventory   inventory.Repository
	rooms       rooms.Repository
	tx          txRunner
	outbox      outbox.Emitter
	idem        redis.IdempotencyStore
	logg        *logger.Logger
	metrics     *metrics.BookingMetrics
	expirer     *Expirer
	maxNights   int
	gateTTL     time.Duration
	lockTimeout time.Duration
	loc         *time.Location
	now         func() time.Time
}

// NewService validates params and builds the booking service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Rooms == nil {
		return nil, fmt.Errorf("rooms repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	maxNights := params.Config.MaxNights
	if maxNights <= 0 {
		maxNights = defaultMaxNights
	}
	gateTTL := params.Config.IdempotencyTTL
	if gateTTL <= 0 {
		gateTTL = defaultGateTTL
	}
	lockTimeout := params.Config.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		inventory:   params.Inventory,
		rooms:       params.Rooms,
		tx:          params.TxRunner,
		outbox:      params.Outbox,
		idem:        params.Idempotency,
		logg:        params.Logger,
		metrics:     params.Metrics,
		expirer:     NewExpirer(params.Repo, params.Inventory, params.Outbox, now),
		maxNights:   maxNights,
		gateTTL:     gateTTL,
		lockTimeout: lockTimeout,
		loc:         loc,
		now:         now,
	}, nil
}

// InitBooking holds RoomsCount units of the room on every date of the range.
// The idempotency key is claimed first and released again on any failure so a
// corrected retry can reuse it.
func (s *service) InitBooking(ctx context.Context, userID uuid.UUID, input InitBookingInput) (*models.Booking, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	gateKey := s.idem.IdempotencyKey(idempotencyScope, key)
	acquired, err := s.idem.SetNX(ctx, gateKey, userID.String(), s.gateTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !acquired {
		s.metrics.IncReservation(metrics.OutcomeDuplicate)
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "booking already initiated")
	}

	booking, err := s.reserve(ctx, userID, input)
	if err != nil {
		if _, delErr := s.idem.DelIfValue(ctx, gateKey, userID.String()); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "failed to release booking idempotency key", delErr)
		}
		s.metrics.IncReservation(reservationOutcome(err))
		return nil, err
	}
	s.metrics.IncReservation(metrics.OutcomeReserved)
	s.metrics.IncTransition(enums.BookingStatusReserved.String())
	if s.logg != nil {
		logCtx := s.logg.WithBookingID(ctx, booking.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"room_id":     booking.RoomID.String(),
			"rooms_count": booking.RoomsCount,
			"nights":      booking.Nights(),
		})
		s.logg.Info(logCtx, "booking reserved")
	}
	return booking, nil
}

func (s *service) reserve(ctx context.Context, userID uuid.UUID, input InitBookingInput) (*models.Booking, error) {
	start := inventory.Day(input.StartDate, time.UTC)
	end := inventory.Day(input.EndDate, time.UTC)
	today := inventory.Day(s.now(), s.loc)
	if input.RoomsCount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rooms count must be at least 1")
	}
	if start.Before(today) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date cannot be in the past")
	}
	if end.Before(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date cannot be before start date")
	}
	nights := inventory.Nights(start, end)
	if nights > s.maxNights {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("bookings cannot exceed %d days", s.maxNights))
	}

	room, err := s.rooms.FindActiveByID(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Hotel != nil && !room.Hotel.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
	}

	var booking *models.Booking
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := db.SetLockTimeout(tx, s.lockTimeout); err != nil {
			return err
		}
		invRepo := s.inventory.WithTx(tx)
		cells, err := invRepo.LockOpenRange(ctx, room.ID, start, end)
		if err != nil {
			return err
		}
		if len(cells) != nights {
			return pkgerrors.New(pkgerrors.CodeConflict, "rooms not available")
		}
		ids := make([]uuid.UUID, 0, len(cells))
		for _, cell := range cells {
			if cell.Available() < input.RoomsCount {
				return pkgerrors.New(pkgerrors.CodeConflict, "rooms not available")
			}
			ids = append(ids, cell.ID)
		}
		if err := invRepo.AddReserved(ctx, ids, input.RoomsCount); err != nil {
			return err
		}

		booking = &models.Booking{
			ID:         uuid.New(),
			HotelID:    room.HotelID,
			RoomID:     room.ID,
			UserID:     userID,
			RoomsCount: input.RoomsCount,
			StartDate:  start,
			EndDate:    end,
			Amount:     inventory.TotalAmount(cells),
			Status:     enums.BookingStatusReserved,
		}
		if err := s.repo.WithTx(tx).Create(ctx, booking); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, LifecycleEvent(*booking, enums.BookingStatusReserved, "", &userID, s.now().UTC()))
	})
	if err != nil {
		return nil, mapTxError(err, "reserve inventory")
	}
	return booking, nil
}

// AddGuests replaces the guest list. Allowed until payment starts.
func (s *service) AddGuests(ctx context.Context, userID, bookingID uuid.UUID, guests []GuestInput) (*models.Booking, error) {
	booking, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(enums.BookingStatusGuestsAdded) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "guests cannot be changed once payment has started").
			WithDetails(map[string]any{"status": booking.Status})
	}
	if len(guests) < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one guest is required")
	}
	room, err := s.rooms.FindByID(ctx, booking.RoomID)
	if err != nil {
		return nil, err
	}
	if limit := room.Capacity * booking.RoomsCount; len(guests) > limit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d guests allowed", limit))
	}
	rows := make([]models.Guest, 0, len(guests))
	for i, guest := range guests {
		name := strings.TrimSpace(guest.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("guest %d name is required", i+1))
		}
		if guest.Age < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("guest %d age is invalid", i+1))
		}
		if guest.Gender != "" && !guest.Gender.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("guest %d gender is invalid", i+1))
		}
		rows = append(rows, models.Guest{ID: uuid.New(), Name: name, Gender: guest.Gender, Age: guest.Age})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateStatus(ctx, booking.ID, booking.Version, enums.BookingStatusGuestsAdded); err != nil {
			return err
		}
		return repo.ReplaceGuests(ctx, booking.ID, rows)
	})
	if err != nil {
		return nil, mapTxError(err, "add guests")
	}
	return s.repo.FindByIDWithGuests(ctx, booking.ID)
}

func (s *service) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByIDWithGuests(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
	}
	return booking, nil
}

func (s *service) GetMyBookings(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListForUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list bookings")
	}
	page, next := pagination.Trim(rows, limit, func(b models.Booking) pagination.Cursor {
		return pagination.Cursor{At: b.StartDate, ID: b.ID}
	})
	return &ListResult{Bookings: page, NextCursor: next}, nil
}

// CancelBooking cancels a confirmed booking, frees its nights and queues a
// refund sized by RefundPercentage. Cancelling twice returns the current state.
func (s *service) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == enums.BookingStatusCancelled {
		return booking, nil
	}
	if booking.Status != enums.BookingStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only confirmed bookings can be cancelled").
			WithDetails(map[string]any{"status": booking.Status})
	}
	payment, err := s.repo.FindPaymentByBookingID(ctx, booking.ID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking has no captured payment")
		}
		return nil, err
	}
	if payment.Status != enums.PaymentStatusSuccessful {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking payment is not refundable").
			WithDetails(map[string]any{"payment_status": payment.Status})
	}

	now := s.now()
	pct := RefundPercentage(booking.StartDate, inventory.Day(now, s.loc))
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := db.SetLockTimeout(tx, s.lockTimeout); err != nil {
			return err
		}
		invRepo := s.inventory.WithTx(tx)
		cells, err := invRepo.LockRange(ctx, booking.RoomID, booking.StartDate, booking.EndDate)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, booking.ID, booking.Version, enums.BookingStatusCancelled); err != nil {
			return err
		}
		if err := inventory.ReleaseBooked(ctx, invRepo, cells, booking.RoomsCount); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, LifecycleEvent(*booking, enums.BookingStatusCancelled, ReasonUserCancel, &userID, now.UTC())); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, RefundRequest(*payment, ReasonUserCancel, pct, now.UTC()))
	})
	if err != nil {
		return nil, mapTxError(err, "cancel booking")
	}
	s.metrics.IncTransition(enums.BookingStatusCancelled.String())
	if s.logg != nil {
		logCtx := s.logg.WithBookingID(ctx, booking.ID.String())
		logCtx = s.logg.WithField(logCtx, "refund_percentage", pct)
		s.logg.Info(logCtx, "booking cancelled")
	}
	return s.repo.FindByID(ctx, booking.ID)
}

func (s *service) ExpireInFlightForRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (int, error) {
	bookings, err := s.repo.WithTx(tx).ListInFlightByRoom(ctx, roomID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list room bookings")
	}
	n, err := s.expirer.expireAll(ctx, tx, bookings, ReasonRoomRemoved)
	s.metrics.AddTransitions(enums.BookingStatusExpired.String(), n)
	return n, err
}

func (s *service) ExpireInFlightForHotel(ctx context.Context, tx *gorm.DB, hotelID uuid.UUID) (int, error) {
	bookings, err := s.repo.WithTx(tx).ListInFlightByHotel(ctx, hotelID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list hotel bookings")
	}
	n, err := s.expirer.expireAll(ctx, tx, bookings, ReasonHotelRemoved)
	s.metrics.AddTransitions(enums.BookingStatusExpired.String(), n)
	return n, err
}

func (s *service) ownedBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
	}
	return booking, nil
}

// RefundPercentage is 50 one day before the stay, 75 two days before and a
// full refund otherwise.
func RefundPercentage(startDate, today time.Time) int {
	switch inventory.DaysBetween(today, startDate) {
	case 1:
		return 50
	case 2:
		return 75
	default:
		return 100
	}
}

func mapTxError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeResourceBusy, err, "inventory is busy, retry shortly")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}

func reservationOutcome(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return metrics.OutcomeConflict
	case pkgerrors.IsCode(err, pkgerrors.CodeResourceBusy):
		return metrics.OutcomeBusy
	default:
		return metrics.OutcomeRejected
	}
}
