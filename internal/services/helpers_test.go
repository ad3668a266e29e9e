package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/notify"
	"github.com/tbourn/consult-booking/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newFileDB returns a file-backed database for tests with concurrent writers.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "booking.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// ----- Clock -----

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ----- Notifier -----

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []notify.Notification
	failTo map[string]error
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failTo[n.To]; err != nil {
		return err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) failFor(to string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTo == nil {
		r.failTo = map[string]error{}
	}
	r.failTo[to] = err
}

func (r *recordingNotifier) of(kind notify.Kind) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// ----- Providers -----

type mockGateway struct {
	mock.Mock
}

func (g *mockGateway) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	args := g.Called(ctx, req)
	resp, _ := args.Get(0).(*paystack.InitializeResponse)
	return resp, args.Error(1)
}

func (g *mockGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error) {
	args := g.Called(ctx, reference)
	tx, _ := args.Get(0).(*paystack.Transaction)
	return tx, args.Error(1)
}

type stubEvents struct {
	mu    sync.Mutex
	event *calendly.ScheduledEvent
	err   error
	calls int
}

func (s *stubEvents) GetScheduledEvent(_ context.Context, _ string) (*calendly.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.event, s.err
}

// ----- Fixture -----

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	notifier *recordingNotifier
	gateway  *mockGateway
	events   *stubEvents
	tokens   *TokenService
	payments *PaymentService
	calendar *CalendarService
	sweeps   *SweepService
}

const (
	testBaseURL = "https://book.example.com"
	testTeam    = "team@example.com"
)

func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	f := &fixture{
		db:       db,
		clock:    newClock(),
		notifier: &recordingNotifier{},
		gateway:  &mockGateway{},
		events:   &stubEvents{},
	}
	f.tokens = &TokenService{
		DB:         db,
		TTL:        24 * time.Hour,
		Notifier:   f.notifier,
		AppBaseURL: testBaseURL,
		Now:        f.clock.Now,
	}
	f.payments = &PaymentService{
		DB:              db,
		Gateway:         f.gateway,
		Tokens:          f.tokens,
		Notifier:        f.notifier,
		AppBaseURL:      testBaseURL,
		CallbackURL:     testBaseURL + "/payment/callback",
		TeamEmail:       testTeam,
		ReferencePrefix: "CNS",
		Price:           15000,
		Currency:        "NGN",
		MaxNameRunes:    255,
		MaxNotesRunes:   2000,
		Now:             f.clock.Now,
	}
	f.calendar = &CalendarService{
		DB:        db,
		Tokens:    f.tokens,
		Events:    f.events,
		Notifier:  f.notifier,
		TeamEmail: testTeam,
	}
	f.sweeps = &SweepService{
		DB:              db,
		Gateway:         f.gateway,
		Tokens:          f.tokens,
		Notifier:        f.notifier,
		AppBaseURL:      testBaseURL,
		CallbackURL:     testBaseURL + "/payment/callback",
		ReferencePrefix: "CNS",
		BatchSize:       50,
		AbandonedAfter:  24 * time.Hour,
		IncompleteAfter: 3 * time.Hour,
		ReminderLead:    24 * time.Hour,
		ReminderWindow:  2 * time.Hour,
		Now:             f.clock.Now,
	}
	return f
}

func seedSession(t *testing.T, db *gorm.DB, id, ref string, mutate ...func(*domain.Session)) *domain.Session {
	t.Helper()
	s := &domain.Session{
		ID:               id,
		PaymentReference: ref,
		CustomerName:     "Ada Lovelace",
		CustomerEmail:    id + "@example.com",
		PaymentAmount:    15000,
		PaymentCurrency:  "NGN",
	}
	for _, m := range mutate {
		m(s)
	}
	if err := repo.CreateSession(context.Background(), db, s); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
