package bookings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/internal/rooms"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/redis"
)

var (
	fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	today    = inventory.Day(fixedNow, time.UTC)
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) types() []enums.OutboxEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.OutboxEventType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.EventType)
	}
	return out
}

type harness struct {
	conn    *gorm.DB
	svc     Service
	emitter *recordingEmitter
	redis   *miniredis.Miniredis
	room    models.Room
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:bookings_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Hotel{},
		&models.Room{},
		&models.InventoryCell{},
		&models.Booking{},
		&models.Guest{},
		&models.Payment{},
	))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func newHarness(t *testing.T, total int) *harness {
	t.Helper()
	return newHarnessWithStore(t, total, nil)
}

// newHarnessWithStore lets a test wrap the idempotency store the service sees.
func newHarnessWithStore(t *testing.T, total int, wrap func(redis.IdempotencyStore, *miniredis.Miniredis) redis.IdempotencyStore) *harness {
	t.Helper()
	conn := newTestDB(t)
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	room := seedRoom(t, conn, total)
	emitter := &recordingEmitter{}
	var idem redis.IdempotencyStore = redis.Wrap(raw)
	if wrap != nil {
		idem = wrap(idem, mr)
	}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Inventory:   inventory.NewRepository(conn),
		Rooms:       rooms.NewRepository(conn),
		TxRunner:    db.FromConn(conn),
		Outbox:      emitter,
		Idempotency: idem,
		Config: config.BookingConfig{
			MaxNights:      30,
			IdempotencyTTL: 10 * time.Minute,
			LockTimeout:    time.Second,
		},
		Now: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, emitter: emitter, redis: mr, room: room}
}

func seedRoom(t *testing.T, conn *gorm.DB, total int) models.Room {
	t.Helper()
	hotel := models.Hotel{ID: uuid.New(), Name: "Harbour View", City: "Lisbon", Active: true}
	require.NoError(t, conn.Create(&hotel).Error)
	room := models.Room{
		ID:         uuid.New(),
		HotelID:    hotel.ID,
		Type:       "DELUXE",
		BasePrice:  decimal.RequireFromString("100"),
		TotalCount: total,
		Capacity:   2,
		Active:     true,
	}
	require.NoError(t, conn.Create(&room).Error)
	return room
}

// seedNights creates cells for today+from .. today+to with the given prices cycling.
func (h *harness) seedNights(t *testing.T, from, to int, prices ...string) {
	t.Helper()
	if len(prices) == 0 {
		prices = []string{"100"}
	}
	for i := from; i <= to; i++ {
		cell := models.InventoryCell{
			ID:          uuid.New(),
			HotelID:     h.room.HotelID,
			RoomID:      h.room.ID,
			Date:        today.AddDate(0, 0, i),
			City:        "Lisbon",
			TotalCount:  h.room.TotalCount,
			Price:       decimal.RequireFromString(prices[(i-from)%len(prices)]),
			SurgeFactor: decimal.NewFromInt(1),
		}
		require.NoError(t, h.conn.Create(&cell).Error)
	}
}

func (h *harness) cells(t *testing.T) []models.InventoryCell {
	t.Helper()
	var cells []models.InventoryCell
	require.NoError(t, h.conn.Order("date ASC").Find(&cells, "room_id = ?", h.room.ID).Error)
	return cells
}

func (h *harness) input(startOffset, endOffset, rooms int, key string) InitBookingInput {
	return InitBookingInput{
		RoomID:         h.room.ID,
		StartDate:      today.AddDate(0, 0, startOffset),
		EndDate:        today.AddDate(0, 0, endOffset),
		RoomsCount:     rooms,
		IdempotencyKey: key,
	}
}

func (h *harness) setStatus(t *testing.T, bookingID uuid.UUID, status enums.BookingStatus) {
	t.Helper()
	require.NoError(t, h.conn.Model(&models.Booking{}).Where("id = ?", bookingID).UpdateColumn("status", status).Error)
}

// confirm turns a reservation into a paid booking the way payment confirmation would.
func (h *harness) confirm(t *testing.T, booking *models.Booking) models.Payment {
	t.Helper()
	h.setStatus(t, booking.ID, enums.BookingStatusConfirmed)
	require.NoError(t, h.conn.Model(&models.InventoryCell{}).
		Where("room_id = ? AND date BETWEEN ? AND ?", booking.RoomID, booking.StartDate, booking.EndDate).
		Updates(map[string]any{
			"reserved_count": gorm.Expr("reserved_count - ?", booking.RoomsCount),
			"booked_count":   gorm.Expr("booked_count + ?", booking.RoomsCount),
		}).Error)
	gatewayPaymentID := "pay_" + booking.ID.String()[:8]
	payment := models.Payment{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		GatewayOrderID:   "order_" + booking.ID.String()[:8],
		GatewayPaymentID: &gatewayPaymentID,
		Amount:           booking.Amount,
		Currency:         "USD",
		Status:           enums.PaymentStatusSuccessful,
	}
	require.NoError(t, h.conn.Create(&payment).Error)
	return payment
}

// takeoverStore hands the claimed key to another owner right after it is won,
// as if the gate ttl lapsed and a second caller claimed it mid request.
type takeoverStore struct {
	redis.IdempotencyStore
	mr    *miniredis.Miniredis
	owner string
}

func (s takeoverStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	ok, err := s.IdempotencyStore.SetNX(ctx, key, value, ttl)
	if ok && err == nil {
		if setErr := s.mr.Set(key, s.owner); setErr != nil {
			return false, setErr
		}
	}
	return ok, err
}
