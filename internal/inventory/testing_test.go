package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
)

var fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Hotel{}, &models.Room{}, &models.InventoryCell{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedRoom(t *testing.T, db *gorm.DB, total int) models.Room {
	t.Helper()
	hotel := models.Hotel{ID: uuid.New(), Name: "Harbour View", City: "Lisbon", Active: true}
	require.NoError(t, db.Create(&hotel).Error)
	room := models.Room{
		ID:         uuid.New(),
		HotelID:    hotel.ID,
		Type:       "DELUXE",
		BasePrice:  decimal.RequireFromString("100.00"),
		TotalCount: total,
		Capacity:   2,
		Active:     true,
	}
	require.NoError(t, db.Create(&room).Error)
	return room
}

func seedCell(t *testing.T, db *gorm.DB, room models.Room, date time.Time, booked, reserved int, closed bool) models.InventoryCell {
	t.Helper()
	cell := models.InventoryCell{
		ID:            uuid.New(),
		HotelID:       room.HotelID,
		RoomID:        room.ID,
		Date:          date,
		City:          "Lisbon",
		TotalCount:    room.TotalCount,
		BookedCount:   booked,
		ReservedCount: reserved,
		Price:         room.BasePrice,
		SurgeFactor:   decimal.NewFromInt(1),
	}
	require.NoError(t, db.Create(&cell).Error)
	if closed {
		require.NoError(t, db.Model(&models.InventoryCell{}).Where("id = ?", cell.ID).Update("closed", true).Error)
		cell.Closed = true
	}
	return cell
}
