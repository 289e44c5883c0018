package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/rooms"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/logger"
)

const defaultHorizonDays = 365

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BookingExpirer releases in-flight bookings when their inventory disappears.
// Implemented by the bookings service.
type BookingExpirer interface {
	ExpireInFlightForRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (int, error)
	ExpireInFlightForHotel(ctx context.Context, tx *gorm.DB, hotelID uuid.UUID) (int, error)
}

// Service manages the inventory lifecycle of rooms entering and leaving the catalog.
type Service interface {
	InitializeRoom(ctx context.Context, actor Actor, roomID uuid.UUID) (int64, error)
	DeleteForRoom(ctx context.Context, actor Actor, roomID uuid.UUID) (int64, error)
	DeleteForHotel(ctx context.Context, actor Actor, hotelID uuid.UUID) (int64, error)
}

// Actor is the caller of an inventory operation. Admins reach every hotel;
// hotel managers only the hotels they manage.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) check() error {
	switch {
	case a.UserID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller is required")
	case a.Role == enums.UserRoleAdmin, a.Role == enums.UserRoleHotelManager:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot manage inventory")
	}
}

func (a Actor) manages(hotel *models.Hotel) error {
	if a.Role == enums.UserRoleAdmin {
		return nil
	}
	if hotel != nil && hotel.ManagerID != nil && *hotel.ManagerID == a.UserID {
		return nil
	}
	return errNotManaged()
}

// conceal keeps managers from probing which foreign ids exist.
func (a Actor) conceal(err error) error {
	if a.Role != enums.UserRoleAdmin && pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return errNotManaged()
	}
	return err
}

func errNotManaged() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "hotel is not managed by caller")
}

// ServiceParams wires the inventory service.
type ServiceParams struct {
	Repo        Repository
	Rooms       rooms.Repository
	TxRunner    txRunner
	Expirer     BookingExpirer
	Logger      *logger.Logger
	Location    *time.Location
	HorizonDays int
	Now         func() time.Time
}

type service struct {
	repo    Repository
	rooms   rooms.Repository
	tx      txRunner
	expirer BookingExpirer
	logg    *logger.Logger
	loc     *time.Location
	horizon int
	now     func() time.Time
}

// NewService validates params and builds the inventory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Rooms == nil {
		return nil, fmt.Errorf("rooms repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	horizon := params.HorizonDays
	if horizon <= 0 {
		horizon = defaultHorizonDays
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
		repo:    params.Repo,
		rooms:   params.Rooms,
		tx:      params.TxRunner,
		expirer: params.Expirer,
		logg:    params.Logger,
		loc:     loc,
		horizon: horizon,
		now:     now,
	}, nil
}

// InitializeRoom creates one cell per date from today through the horizon.
// Dates that already have a cell are left untouched.
func (s *service) InitializeRoom(ctx context.Context, actor Actor, roomID uuid.UUID) (int64, error) {
	if err := actor.check(); err != nil {
		return 0, err
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return 0, actor.conceal(err)
	}
	if room.Hotel == nil {
		return 0, actor.conceal(pkgerrors.New(pkgerrors.CodeNotFound, "hotel not found"))
	}
	if err := actor.manages(room.Hotel); err != nil {
		return 0, err
	}
	if room.TotalCount < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "room total count must not be negative")
	}

	today := Day(s.now(), s.loc)
	cells := make([]models.InventoryCell, 0, s.horizon+1)
	for i := 0; i <= s.horizon; i++ {
		cells = append(cells, models.InventoryCell{
			ID:          uuid.New(),
			HotelID:     room.HotelID,
			RoomID:      room.ID,
			Date:        today.AddDate(0, 0, i),
			City:        room.Hotel.City,
			TotalCount:  room.TotalCount,
			Price:       room.BasePrice,
			SurgeFactor: decimal.NewFromInt(1),
		})
	}

	created, err := s.repo.CreateCells(ctx, cells)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create inventory cells")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"room_id":       room.ID.String(),
			"cells_created": created,
			"actor_id":      actor.UserID.String(),
		})
		s.logg.Info(logCtx, "room inventory initialized")
	}
	return created, nil
}

// DeleteForRoom expires the room's in-flight bookings and removes its cells.
func (s *service) DeleteForRoom(ctx context.Context, actor Actor, roomID uuid.UUID) (int64, error) {
	if err := actor.check(); err != nil {
		return 0, err
	}
	if actor.Role != enums.UserRoleAdmin {
		room, err := s.rooms.FindByID(ctx, roomID)
		if err != nil {
			return 0, actor.conceal(err)
		}
		if err := actor.manages(room.Hotel); err != nil {
			return 0, err
		}
	}
	var deleted int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if s.expirer != nil {
			expired, err := s.expirer.ExpireInFlightForRoom(ctx, tx, roomID)
			if err != nil {
				return err
			}
			s.logExpired(ctx, "room_id", roomID, expired)
		}
		n, err := s.repo.WithTx(tx).DeleteByRoom(ctx, roomID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete room inventory")
		}
		deleted = n
		return nil
	})
	return deleted, err
}

// DeleteForHotel is DeleteForRoom for every room of the hotel.
func (s *service) DeleteForHotel(ctx context.Context, actor Actor, hotelID uuid.UUID) (int64, error) {
	if err := actor.check(); err != nil {
		return 0, err
	}
	if actor.Role != enums.UserRoleAdmin {
		hotel, err := s.rooms.FindHotelByID(ctx, hotelID)
		if err != nil {
			return 0, actor.conceal(err)
		}
		if err := actor.manages(hotel); err != nil {
			return 0, err
		}
	}
	var deleted int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if s.expirer != nil {
			expired, err := s.expirer.ExpireInFlightForHotel(ctx, tx, hotelID)
			if err != nil {
				return err
			}
			s.logExpired(ctx, "hotel_id", hotelID, expired)
		}
		n, err := s.repo.WithTx(tx).DeleteByHotel(ctx, hotelID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete hotel inventory")
		}
		deleted = n
		return nil
	})
	return deleted, err
}

func (s *service) logExpired(ctx context.Context, field string, id uuid.UUID, expired int) {
	if s.logg == nil || expired == 0 {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		field:              id.String(),
		"bookings_expired": expired,
	})
	s.logg.Info(logCtx, "in-flight bookings expired with removed inventory")
}

// TotalAmount sums the nightly prices of the given cells.
func TotalAmount(cells []models.InventoryCell) decimal.Decimal {
	total := decimal.Zero
	for _, cell := range cells {
		total = total.Add(cell.Price)
	}
	return total.Round(2)
}
