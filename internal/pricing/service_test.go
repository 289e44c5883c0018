package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:pricing_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Hotel{}, &models.Room{}, &models.InventoryCell{}))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func seedCells(t *testing.T, conn *gorm.DB, n int, booked int) models.Room {
	t.Helper()
	hotel := models.Hotel{ID: uuid.New(), Name: "Cliffside", City: "Porto", Active: true}
	require.NoError(t, conn.Create(&hotel).Error)
	room := models.Room{ID: uuid.New(), HotelID: hotel.ID, Type: "STANDARD", BasePrice: dec("100"), TotalCount: 10, Capacity: 2, Active: true}
	require.NoError(t, conn.Create(&room).Error)
	for i := 0; i < n; i++ {
		cell := models.InventoryCell{
			ID:          uuid.New(),
			HotelID:     hotel.ID,
			RoomID:      room.ID,
			Date:        monday.AddDate(0, 0, i),
			City:        hotel.City,
			TotalCount:  10,
			BookedCount: booked,
			Price:       dec("100"),
			SurgeFactor: decimal.NewFromInt(1),
		}
		require.NoError(t, conn.Create(&cell).Error)
	}
	return room
}

func TestRepricePagesThroughAllCells(t *testing.T) {
	conn := newTestDB(t)
	seedCells(t, conn, 7, 6)
	svc, err := NewService(ServiceParams{
		Repo:     inventory.NewRepository(conn),
		TxRunner: db.FromConn(conn),
		PageSize: 3,
		Now:      func() time.Time { return monday.Add(10 * time.Hour) },
	})
	require.NoError(t, err)

	result, err := svc.Reprice(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, result.Scanned)
	require.Equal(t, 7, result.Updated)

	var cells []models.InventoryCell
	require.NoError(t, conn.Order("date ASC").Find(&cells).Error)
	// Monday: 100*1.10*1.15 = 126.50. Friday adds the weekend markup: 145.48 (145.475 half up).
	require.Equal(t, "126.50", cells[0].Price.StringFixed(2))
	require.Equal(t, "145.48", cells[4].Price.StringFixed(2))

	result, err = svc.Reprice(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Updated, "unchanged prices are not rewritten")
}

func TestRepriceNeverGoesBelowBase(t *testing.T) {
	conn := newTestDB(t)
	seedCells(t, conn, 1, 0)
	svc, err := NewService(ServiceParams{
		Repo:     inventory.NewRepository(conn),
		TxRunner: db.FromConn(conn),
		Now:      func() time.Time { return monday.AddDate(0, 0, -40) },
	})
	require.NoError(t, err)

	// 40 days out on a Monday only the early bird discount applies.
	result, err := svc.Reprice(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Updated)

	var cell models.InventoryCell
	require.NoError(t, conn.First(&cell).Error)
	require.True(t, cell.Price.Equal(dec("100")))
}
