package payments

import (
	"context"
	"fmt"
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

	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/db/models"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/outbox"
	"github.com/angelmondragon/livo-backend/pkg/redis"
)

const testSecret = "client-secret"

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

func (r *recordingEmitter) ofType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.DomainEvent
	for _, event := range r.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	orders    []OrderRequest
	refunds   []RefundRequest
	orderErr  error
	refundErr error
}

func (f *fakeGateway) CreateOrder(_ context.Context, req OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return "", f.orderErr
	}
	f.orders = append(f.orders, req)
	return fmt.Sprintf("order_%d", len(f.orders)), nil
}

func (f *fakeGateway) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return RefundResult{}, f.refundErr
	}
	f.refunds = append(f.refunds, req)
	return RefundResult{ID: fmt.Sprintf("refund_%d", len(f.refunds)), Status: enums.RefundStatusPending}, nil
}

type harness struct {
	conn    *gorm.DB
	svc     Service
	emitter *recordingEmitter
	gateway *fakeGateway
	room    models.Room
	user    uuid.UUID
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		&models.Refund{},
		&models.GatewayEvent{},
	))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, harnessOptions{})
}

// harnessOptions let a test interpose on the stores the service talks to.
type harnessOptions struct {
	bookings    func(bookings.Repository, *gorm.DB) bookings.Repository
	idempotency func(redis.IdempotencyStore, *miniredis.Miniredis) redis.IdempotencyStore
}

func newHarnessWith(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	conn := newTestDB(t)
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	hotel := models.Hotel{ID: uuid.New(), Name: "Harbour View", City: "Lisbon", Active: true}
	require.NoError(t, conn.Create(&hotel).Error)
	room := models.Room{
		ID:         uuid.New(),
		HotelID:    hotel.ID,
		Type:       "DELUXE",
		BasePrice:  decimal.RequireFromString("100"),
		TotalCount: 4,
		Capacity:   2,
		Active:     true,
	}
	require.NoError(t, conn.Create(&room).Error)

	emitter := &recordingEmitter{}
	gateway := &fakeGateway{}
	bookingRepo := bookings.NewRepository(conn)
	if opts.bookings != nil {
		bookingRepo = opts.bookings(bookingRepo, conn)
	}
	var idem redis.IdempotencyStore = redis.Wrap(raw)
	if opts.idempotency != nil {
		idem = opts.idempotency(idem, mr)
	}
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(conn),
		Bookings:      bookingRepo,
		Inventory:     inventory.NewRepository(conn),
		TxRunner:      db.FromConn(conn),
		Outbox:        emitter,
		Idempotency:   idem,
		Gateway:       gateway,
		Config:        config.BookingConfig{IdempotencyTTL: 10 * time.Minute, LockTimeout: time.Second},
		SigningSecret: testSecret,
		Currency:      "usd",
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, emitter: emitter, gateway: gateway, room: room, user: uuid.New()}
}

// reserve seeds three nights holding rooms units and a booking in status.
func (h *harness) reserve(t *testing.T, rooms int, status enums.BookingStatus) models.Booking {
	t.Helper()
	start := today.AddDate(0, 0, 3)
	for i := 0; i < 3; i++ {
		cell := models.InventoryCell{
			ID:            uuid.New(),
			HotelID:       h.room.HotelID,
			RoomID:        h.room.ID,
			Date:          start.AddDate(0, 0, i),
			City:          "Lisbon",
			TotalCount:    h.room.TotalCount,
			ReservedCount: rooms,
			Price:         decimal.RequireFromString("106.83"),
			SurgeFactor:   decimal.NewFromInt(1),
		}
		require.NoError(t, h.conn.Create(&cell).Error)
	}
	booking := models.Booking{
		ID:         uuid.New(),
		HotelID:    h.room.HotelID,
		RoomID:     h.room.ID,
		UserID:     h.user,
		RoomsCount: rooms,
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 2),
		Amount:     decimal.RequireFromString("320.49"),
		Status:     status,
	}
	require.NoError(t, h.conn.Create(&booking).Error)
	return booking
}

func (h *harness) booking(t *testing.T, id uuid.UUID) models.Booking {
	t.Helper()
	var booking models.Booking
	require.NoError(t, h.conn.First(&booking, "id = ?", id).Error)
	return booking
}

func (h *harness) payment(t *testing.T, bookingID uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, h.conn.First(&payment, "booking_id = ?", bookingID).Error)
	return payment
}

func (h *harness) cells(t *testing.T) []models.InventoryCell {
	t.Helper()
	var cells []models.InventoryCell
	require.NoError(t, h.conn.Order("date ASC").Find(&cells, "room_id = ?", h.room.ID).Error)
	return cells
}

func (h *harness) setBookingStatus(t *testing.T, id uuid.UUID, status enums.BookingStatus) {
	t.Helper()
	require.NoError(t, h.conn.Model(&models.Booking{}).Where("id = ?", id).UpdateColumn("status", status).Error)
}

// captured seeds a SUCCESSFUL payment for a confirmed booking.
func (h *harness) captured(t *testing.T) models.Payment {
	t.Helper()
	booking := h.reserve(t, 1, enums.BookingStatusConfirmed)
	gatewayPaymentID := "pay_1"
	payment := models.Payment{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		GatewayOrderID:   "order_paid",
		GatewayPaymentID: &gatewayPaymentID,
		Amount:           booking.Amount,
		Currency:         "USD",
		Status:           enums.PaymentStatusSuccessful,
	}
	require.NoError(t, h.conn.Create(&payment).Error)
	return payment
}

// sweptBookings lets the expiry sweep win the booking right after the
// service has read it, once.
type sweptBookings struct {
	bookings.Repository
	conn    *gorm.DB
	expirer *bookings.Expirer
	swept   bool
}

func (r *sweptBookings) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := r.Repository.FindByID(ctx, id)
	if err != nil || r.swept {
		return booking, err
	}
	r.swept = true
	expireErr := r.conn.Transaction(func(tx *gorm.DB) error {
		ok, err := r.expirer.Expire(ctx, tx, id, "expired")
		if err == nil && !ok {
			err = fmt.Errorf("booking %s was not in flight", id)
		}
		return err
	})
	return booking, expireErr
}

// takeoverStore hands the claimed key to another owner right after it is won.
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
