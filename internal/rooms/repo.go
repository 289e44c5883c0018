package rooms

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
)

// Repository reads the room catalog projection. Catalog writes live elsewhere.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListIDsByHotel(ctx context.Context, hotelID uuid.UUID) ([]uuid.UUID, error)
	FindHotelByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a room repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByID loads the room with its hotel, regardless of the active flag.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Preload("Hotel").
		Where("id = ?", id).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load room")
	}
	return &room, nil
}

// FindActiveByID is FindByID restricted to bookable rooms.
func (r *repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
	}
	return room, nil
}

func (r *repository) ListIDsByHotel(ctx context.Context, hotelID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("hotel_id = ?", hotelID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list hotel rooms")
	}
	return ids, nil
}

func (r *repository) FindHotelByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error) {
	var hotel models.Hotel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&hotel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "hotel not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load hotel")
	}
	return &hotel, nil
}
