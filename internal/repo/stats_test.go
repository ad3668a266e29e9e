package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/consult-booking/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestSessionsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := SessionsStats(context.Background(), db); err == nil {
		t.Fatalf("expected error due to missing sessions table")
	}
}

func TestSessionsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	count, maxAt, err := SessionsStats(context.Background(), db)
	if err != nil {
		t.Fatalf("SessionsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestSessionsStats_Success_Max(t *testing.T) {
	db := newTestDB(t, &domain.Session{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max
	for i, ts := range []time.Time{t1, t2} {
		s := &domain.Session{
			ID:               fmt.Sprintf("s%d", i),
			PaymentReference: fmt.Sprintf("REF-%d", i),
			CustomerName:     "n",
			CustomerEmail:    "e@x.io",
			PaymentAmount:    1,
			PaymentCurrency:  "NGN",
			CreatedAt:        ts,
			UpdatedAt:        ts,
		}
		// GORM keeps non-zero timestamps on insert.
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, maxAt, err := SessionsStats(context.Background(), db)
	if err != nil {
		t.Fatalf("SessionsStats error: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, maxAt)
	}
}
