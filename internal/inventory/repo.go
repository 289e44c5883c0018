package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
)

const createBatchSize = 100

// Repository persists inventory cells. Locking reads must run inside a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCells(ctx context.Context, cells []models.InventoryCell) (int64, error)
	LockOpenRange(ctx context.Context, roomID uuid.UUID, start, end time.Time) ([]models.InventoryCell, error)
	LockRange(ctx context.Context, roomID uuid.UUID, start, end time.Time) ([]models.InventoryCell, error)
	AddReserved(ctx context.Context, cellIDs []uuid.UUID, delta int) error
	UpdateCounters(ctx context.Context, cellID uuid.UUID, booked, reserved int) error
	FindRange(ctx context.Context, roomID uuid.UUID, start, end time.Time) ([]models.InventoryCell, error)
	ListRepricingPage(ctx context.Context, today time.Time, afterID *uuid.UUID, limit int) ([]RepricingRow, error)
	UpdatePrice(ctx context.Context, cellID uuid.UUID, price decimal.Decimal) error
	DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error)
	DeleteByHotel(ctx context.Context, hotelID uuid.UUID) (int64, error)
}

// RepricingRow pairs a cell with the base price of its room.
type RepricingRow struct {
	models.InventoryCell
	BasePrice decimal.Decimal `gorm:"column:base_price"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateCells inserts cells, skipping any (hotel, room, date) that already exists.
func (r *repository) CreateCells(ctx context.Context, cells []models.InventoryCell) (int64, error) {
	if len(cells) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&cells, createBatchSize)
	return res.RowsAffected, res.Error
}

// LockOpenRange takes row locks on the open cells of the range in date order.
func (r *repository) LockOpenRange(ctx context.Context, roomID uuid.UUID, start, end time.Time) ([]models.InventoryCell, error) {
	var cells []models.InventoryCell
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ? AND date BETWEEN ? AND ? AND closed = ?", roomID, start, end, false).
		Order("date ASC").
		Order("id ASC").
		Find(&cells).Error
	return cells, err
}

// LockRange locks every cell of the range, closed or not. Used when releasing.
func (r *repository) LockRange(ctx context.Context, roomID uuid.UUID, start, end time.Time) ([]models.InventoryCell, error) {
	var cells []models.InventoryCell
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("room_id = ? AND date BETWEEN ? AND ?", roomID, start, end).
		Order("date ASC").
		Order("id ASC").
		Find(&cells).Error
	return cells, err
}

// AddReserved shifts reserved_count by delta; the result never drops below zero.
func (r *repository) AddReserved(ctx context.Context, cellIDs []uuid.UUID, delta int) error {
	if len(cellIDs) == 0 || delta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.InventoryCell{}).
		Where("id IN ?", cellIDs).
		Updates(map[string]any{
			"reserved_count": gorm.Expr("CASE WHEN reserved_count + ? < 0 THEN 0 ELSE reserved_count + ? END", delta, delta),
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateCounters(ctx context.Context, cellID uuid.UUID, booked, reserved int) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryCell{}).
		Where("id = ?", cellID).
		Updates(map[string]any{
			"booked_count":   booked,
			"reserved_count": reserved,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *repository) FindRange(ctx context.Context, roomID uuid.UUID, start, end time.Time) ([]models.InventoryCell, error) {
	var cells []models.InventoryCell
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND date BETWEEN ? AND ?", roomID, start, end).
		Order("date ASC").
		Find(&cells).Error
	return cells, err
}

// ListRepricingPage returns open, future cells with spare capacity, keyed by id.
func (r *repository) ListRepricingPage(ctx context.Context, today time.Time, afterID *uuid.UUID, limit int) ([]RepricingRow, error) {
	query := r.db.WithContext(ctx).
		Table("inventory_cells AS c").
		Select("c.*, r.base_price AS base_price").
		Joins("JOIN rooms r ON r.id = c.room_id").
		Where("c.closed = ? AND c.date >= ?", false, today).
		Where("c.booked_count + c.reserved_count < c.total_count")
	if afterID != nil {
		query = query.Where("c.id > ?", *afterID)
	}
	var rows []RepricingRow
	err := query.Order("c.id ASC").Limit(limit).Scan(&rows).Error
	return rows, err
}

func (r *repository) UpdatePrice(ctx context.Context, cellID uuid.UUID, price decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryCell{}).
		Where("id = ?", cellID).
		Updates(map[string]any{
			"price":      price,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.InventoryCell{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteByHotel(ctx context.Context, hotelID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("hotel_id = ?", hotelID).Delete(&models.InventoryCell{})
	return res.RowsAffected, res.Error
}
