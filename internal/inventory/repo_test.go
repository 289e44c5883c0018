package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/pkg/db/models"
)

func TestLockOpenRangeSkipsClosedAndOrdersByDate(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db, 3)
	day := Day(fixedNow, nil)
	seedCell(t, db, room, day.AddDate(0, 0, 2), 0, 0, false)
	seedCell(t, db, room, day, 0, 0, false)
	seedCell(t, db, room, day.AddDate(0, 0, 1), 0, 0, true)

	cells, err := NewRepository(db).LockOpenRange(context.Background(), room.ID, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, cells, 2)
	require.True(t, cells[0].Date.Equal(day))
	require.True(t, cells[1].Date.Equal(day.AddDate(0, 0, 2)))

	all, err := NewRepository(db).LockRange(context.Background(), room.ID, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestAddReservedFloorsAtZero(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db, 3)
	cell := seedCell(t, db, room, Day(fixedNow, nil), 0, 1, false)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.AddReserved(ctx, []uuid.UUID{cell.ID}, 2))
	var reloaded models.InventoryCell
	require.NoError(t, db.First(&reloaded, "id = ?", cell.ID).Error)
	require.Equal(t, 3, reloaded.ReservedCount)

	require.NoError(t, repo.AddReserved(ctx, []uuid.UUID{cell.ID}, -5))
	require.NoError(t, db.First(&reloaded, "id = ?", cell.ID).Error)
	require.Equal(t, 0, reloaded.ReservedCount)
}

func TestCapacityCheckRejectsOverbooking(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db, 2)
	cell := seedCell(t, db, room, Day(fixedNow, nil), 1, 1, false)

	err := NewRepository(db).UpdateCounters(context.Background(), cell.ID, 2, 1)
	require.Error(t, err)
}

func TestListRepricingPageFilters(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db, 2)
	today := Day(fixedNow, nil)
	open := seedCell(t, db, room, today, 1, 0, false)
	seedCell(t, db, room, today.AddDate(0, 0, 1), 1, 1, false)
	seedCell(t, db, room, today.AddDate(0, 0, 2), 0, 0, true)
	seedCell(t, db, room, today.AddDate(0, 0, -1), 0, 0, false)

	rows, err := NewRepository(db).ListRepricingPage(context.Background(), today, nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, open.ID, rows[0].ID)
	require.True(t, rows[0].BasePrice.Equal(decimal.RequireFromString("100")))

	after := rows[0].ID
	rows, err = NewRepository(db).ListRepricingPage(context.Background(), today, &after, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDeleteByHotel(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db, 2)
	other := seedRoom(t, db, 2)
	seedCell(t, db, room, Day(fixedNow, nil), 0, 0, false)
	seedCell(t, db, other, Day(fixedNow, nil), 0, 0, false)

	deleted, err := NewRepository(db).DeleteByHotel(context.Background(), room.HotelID)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.InventoryCell{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func TestLedgerTransitions(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db, 3)
	day := Day(fixedNow, nil)
	seedCell(t, db, room, day, 1, 2, false)
	seedCell(t, db, room, day.AddDate(0, 0, 1), 0, 1, false)
	repo := NewRepository(db)
	ctx := context.Background()

	load := func() []models.InventoryCell {
		cells, err := repo.LockRange(ctx, room.ID, day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		return cells
	}

	require.NoError(t, CommitReserved(ctx, repo, load(), 2))
	cells := load()
	require.Equal(t, 3, cells[0].BookedCount)
	require.Equal(t, 0, cells[0].ReservedCount)
	// only one unit was held on the second night; booked may not exceed total.
	require.Equal(t, 2, cells[1].BookedCount)
	require.Equal(t, 0, cells[1].ReservedCount)

	require.NoError(t, ReleaseBooked(ctx, repo, cells, 3))
	cells = load()
	require.Equal(t, 0, cells[0].BookedCount)
	require.Equal(t, 0, cells[1].BookedCount)

	require.NoError(t, ReleaseReserved(ctx, repo, cells, 1))
	cells = load()
	require.Equal(t, 0, cells[0].ReservedCount)
}
