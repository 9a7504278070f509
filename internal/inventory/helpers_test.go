package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/stockledger/internal/ledger"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/outbox"
	"github.com/angelmondragon/stockledger/pkg/retry"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db      *gorm.DB
	client  *db.Client
	ledger  ledger.Service
	engine  *Engine
	svc     Service
	storeID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes whole transactions. Row lock contention needs Postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	engine, err := NewEngine(ledgerSvc, outbox.NewService(outbox.NewRepository(conn), nil))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	client := db.FromGorm(conn, 0)
	svc, err := NewService(client, engine, ledgerSvc, Options{
		Retry: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	return &testEnv{
		db:      conn,
		client:  client,
		ledger:  ledgerSvc,
		engine:  engine,
		svc:     svc,
		storeID: uuid.New(),
	}
}

// seedProduct creates a product and books its opening stock through the ledger.
func (e *testEnv) seedProduct(t *testing.T, sku string, onHand, threshold int) SubjectRef {
	t.Helper()
	return e.seedProductInStore(t, e.storeID, sku, onHand, threshold)
}

func (e *testEnv) seedProductInStore(t *testing.T, storeID uuid.UUID, sku string, onHand, threshold int) SubjectRef {
	t.Helper()
	product := models.Product{StoreID: storeID, SKU: sku, Name: "Product " + sku, LowStockThreshold: threshold}
	if err := e.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	ref := SubjectRef{Type: enums.SubjectProduct, ID: product.ID}
	e.openingStock(t, ref, onHand)
	return ref
}

func (e *testEnv) seedVariant(t *testing.T, product SubjectRef, sku string, onHand, threshold int) SubjectRef {
	t.Helper()
	variant := models.ProductVariant{ProductID: product.ID, SKU: sku, Name: "Variant " + sku, LowStockThreshold: threshold}
	if err := e.db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	ref := SubjectRef{Type: enums.SubjectVariant, ID: variant.ID}
	e.openingStock(t, ref, onHand)
	return ref
}

func (e *testEnv) openingStock(t *testing.T, ref SubjectRef, onHand int) {
	t.Helper()
	if onHand == 0 {
		return
	}
	if _, err := e.svc.AdjustStock(context.Background(), AdjustStockInput{
		Subject:   ref,
		Quantity:  onHand,
		Operation: enums.StockOperationSet,
		Reason:    "opening stock",
	}); err != nil {
		t.Fatalf("opening stock: %v", err)
	}
}

func (e *testEnv) level(t *testing.T, ref SubjectRef) StockLevel {
	t.Helper()
	subject, err := NewSubject(ref)
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	info, err := subject.Describe(context.Background(), e.db)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	return info.Level
}

func (e *testEnv) movements(t *testing.T, ref SubjectRef) []models.StockMovement {
	t.Helper()
	var rows []models.StockMovement
	if err := e.db.Where("subject_type = ? AND subject_id = ?", ref.Type, ref.ID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load movements: %v", err)
	}
	return rows
}

func (e *testEnv) reservations(t *testing.T, orderID uuid.UUID) []models.StockReservation {
	t.Helper()
	var rows []models.StockReservation
	if err := e.db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	return rows
}

func (e *testEnv) alerts(t *testing.T, ref SubjectRef, status enums.AlertStatus) []models.StockAlert {
	t.Helper()
	var rows []models.StockAlert
	if err := e.db.Where("subject_type = ? AND subject_id = ? AND status = ?", ref.Type, ref.ID, status).Find(&rows).Error; err != nil {
		t.Fatalf("load alerts: %v", err)
	}
	return rows
}

func (e *testEnv) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

// assertInvariants checks ledger replay, non-negative availability and
// reservation conservation for a subject.
func (e *testEnv) assertInvariants(t *testing.T, ref SubjectRef) {
	t.Helper()
	level := e.level(t, ref)
	if level.Available() < 0 || level.Reserved < 0 {
		t.Fatalf("negative availability: %+v", level)
	}

	replay := ledger.Replay(e.movements(t, ref))
	if !replay.Complete || replay.Final != level.OnHand {
		t.Fatalf("ledger replay %+v does not match on hand %d", replay, level.OnHand)
	}

	var held int64
	if err := e.db.Model(&models.StockReservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("subject_type = ? AND subject_id = ? AND status = ?", ref.Type, ref.ID, enums.ReservationStatusReserved).
		Scan(&held).Error; err != nil {
		t.Fatalf("sum reservations: %v", err)
	}
	if int(held) != level.Reserved {
		t.Fatalf("reserved rows sum %d but reserved quantity %d", held, level.Reserved)
	}
}
