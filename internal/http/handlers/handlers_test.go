package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/services"
)

const (
	testSessionID = "141add05-4415-4938-b5a1-17e0d3171aff"
	paystackKey   = "sk_test_secret"
	calendlyKey   = "whsec_calendly"
)

// ---------- stubs ----------

type stubPayments struct {
	checkoutIn  services.CheckoutInput
	checkoutN   int
	checkoutRes *services.CheckoutResult
	checkoutErr error

	receipt   *services.PaymentReceipt
	verifyErr error

	events   []paystack.Event
	eventErr error
}

func (s *stubPayments) StartCheckout(_ context.Context, in services.CheckoutInput) (*services.CheckoutResult, error) {
	s.checkoutN++
	s.checkoutIn = in
	return s.checkoutRes, s.checkoutErr
}

func (s *stubPayments) VerifyRedirect(_ context.Context, _ string) (*services.PaymentReceipt, error) {
	return s.receipt, s.verifyErr
}

func (s *stubPayments) HandleChargeEvent(_ context.Context, ev paystack.Event) error {
	s.events = append(s.events, ev)
	return s.eventErr
}

type stubTokens struct {
	sess       *domain.Session
	verifyErr  error
	link       string
	reissueErr error
}

func (s *stubTokens) Verify(_ context.Context, _, _ string) (*domain.Session, error) {
	return s.sess, s.verifyErr
}

func (s *stubTokens) Reissue(_ context.Context, _ string) (*domain.Session, string, error) {
	if s.reissueErr != nil && s.link == "" {
		return nil, "", s.reissueErr
	}
	return s.sess, s.link, s.reissueErr
}

type stubCalendar struct {
	events  []calendly.Event
	outcome services.CalendarOutcome
	err     error
}

func (s *stubCalendar) HandleEvent(_ context.Context, ev calendly.Event) (services.CalendarOutcome, error) {
	s.events = append(s.events, ev)
	return s.outcome, s.err
}

type stubSweeps struct {
	names []string
	res   services.SweepResult
	err   error
}

func (s *stubSweeps) Run(_ context.Context, name string) (services.SweepResult, error) {
	s.names = append(s.names, name)
	return s.res, s.err
}

type stubSessions struct {
	items []domain.Session
	byID  map[string]*domain.Session
	last  *time.Time
}

func (s *stubSessions) ListPage(_ context.Context, page, pageSize int) ([]domain.Session, int64, error) {
	total := int64(len(s.items))
	start := (page - 1) * pageSize
	if start >= len(s.items) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(s.items) {
		end = len(s.items)
	}
	return s.items[start:end], total, nil
}

func (s *stubSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	if sess, ok := s.byID[id]; ok {
		return sess, nil
	}
	return nil, services.ErrSessionNotFound
}

func (s *stubSessions) Stats(context.Context) (int64, *time.Time, error) {
	return int64(len(s.items)), s.last, nil
}

type memIdempotency struct {
	m     map[string]string
	saved int
}

func (s *memIdempotency) Lookup(_ context.Context, scope, key string) (string, bool, error) {
	id, ok := s.m[scope+"|"+key]
	return id, ok, nil
}

func (s *memIdempotency) Save(_ context.Context, scope, key, sessionID string, _ int) error {
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.saved++
	s.m[scope+"|"+key] = sessionID
	return nil
}

// ---------- harness ----------

type fixture struct {
	payments *stubPayments
	tokens   *stubTokens
	calendar *stubCalendar
	sweeps   *stubSweeps
	sessions *stubSessions
	idem     *memIdempotency
	now      time.Time
	ping     error
}

func newFixture() *fixture {
	return &fixture{
		payments: &stubPayments{},
		tokens:   &stubTokens{},
		calendar: &stubCalendar{},
		sweeps:   &stubSweeps{},
		sessions: &stubSessions{byID: map[string]*domain.Session{}},
		idem:     &memIdempotency{},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(Services{
		Payments:    f.payments,
		Tokens:      f.tokens,
		Calendar:    f.calendar,
		Sweeps:      f.sweeps,
		Sessions:    f.sessions,
		Idempotency: f.idem,
	}, Options{
		PaystackSecret:     paystackKey,
		CalendlySigningKey: calendlyKey,
		CalendlyTolerance:  5 * time.Minute,
		SchedulingURL:      "https://calendly.com/acme/consultation",
		Ping:               func(context.Context) error { return f.ping },
		Now:                func() time.Time { return f.now },
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		// mimic IdempotencyValidator for tests that send the header
		if k := c.GetHeader("Idempotency-Key"); k != "" {
			c.Set("idem.key", k)
			c.Set("idem.scope", "checkout")
		}
		c.Next()
	})
	r.POST("/sessions", h.CreateSession)
	r.GET("/payments/verify", h.VerifyPayment)
	r.POST("/webhooks/paystack", h.PaystackWebhook)
	r.GET("/booking/verify", h.VerifyBooking)
	r.POST("/webhooks/calendly", h.CalendlyWebhook)
	for path, name := range SweepRoutes {
		r.POST("/cron/"+path, h.RunSweep(name))
	}
	r.GET("/admin/sessions", h.ListSessions)
	r.GET("/admin/sessions/:id", h.GetSession)
	r.POST("/admin/sessions/:id/booking-token", h.ReissueBookingToken)
	r.GET("/health", h.Health)
	return r
}

func do(r http.Handler, method, target string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return v
}

// ---------- checkout ----------

func TestCreateSession_BadBody(t *testing.T) {
	f := newFixture()
	w := do(f.router(), http.MethodPost, "/sessions", []byte(`{"name":"Ada","email":"nope"}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if f.payments.checkoutN != 0 {
		t.Fatalf("checkout must not run on invalid input")
	}
}

func TestCreateSession_CreatesAndReplays(t *testing.T) {
	f := newFixture()
	f.payments.checkoutRes = &services.CheckoutResult{
		SessionID:        testSessionID,
		Reference:        "CONSULT-20250301-aabbccdd",
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
	}
	f.sessions.byID[testSessionID] = &domain.Session{
		ID:               testSessionID,
		PaymentReference: "CONSULT-20250301-aabbccdd",
		AuthorizationURL: "https://checkout.paystack.com/abc",
	}
	r := f.router()
	body := []byte(`{"name":"  Ada Obi ","email":"ada@example.com","notes":"pricing"}`)
	hdr := map[string]string{"Idempotency-Key": "form-1"}

	w := do(r, http.MethodPost, "/sessions", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if f.payments.checkoutIn.Name != "Ada Obi" {
		t.Fatalf("name not trimmed: %q", f.payments.checkoutIn.Name)
	}
	if f.idem.saved != 1 {
		t.Fatalf("expected idempotency record saved")
	}

	w = do(r, http.MethodPost, "/sessions", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("replay status=%d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	got := decode[services.CheckoutResult](t, w)
	if got.SessionID != testSessionID || got.Reference != "CONSULT-20250301-aabbccdd" {
		t.Fatalf("unexpected replay body: %+v", got)
	}
	if f.payments.checkoutN != 1 {
		t.Fatalf("checkout ran %d times, want 1", f.payments.checkoutN)
	}
}

func TestCreateSession_GatewayDown(t *testing.T) {
	f := newFixture()
	f.payments.checkoutErr = &services.UpstreamError{Provider: "paystack", Err: errors.New("timeout")}
	w := do(f.router(), http.MethodPost, "/sessions", []byte(`{"name":"Ada","email":"ada@example.com"}`), nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decode[ErrorResponse](t, w); er.Code != ErrCodeUpstream {
		t.Fatalf("code=%q", er.Code)
	}
}

// ---------- payments ----------

func TestVerifyPayment(t *testing.T) {
	paid := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		f := newFixture()
		f.payments.receipt = &services.PaymentReceipt{
			Reference: "R1", Amount: 5000000, Currency: "NGN", PaidAt: &paid, CustomerEmail: "ada@example.com",
		}
		w := do(f.router(), http.MethodGet, "/payments/verify?reference=R1", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		resp := decode[VerifyPaymentResponse](t, w)
		if !resp.Success || resp.Data == nil || resp.Data.Amount != 5000000 || resp.Data.CustomerEmail != "ada@example.com" {
			t.Fatalf("unexpected: %+v", resp)
		}
	})

	t.Run("not successful", func(t *testing.T) {
		f := newFixture()
		f.payments.verifyErr = &services.PaymentNotSuccessfulError{Status: "abandoned"}
		w := do(f.router(), http.MethodGet, "/payments/verify?reference=R1", nil, nil)
		if w.Code != http.StatusPaymentRequired {
			t.Fatalf("status=%d", w.Code)
		}
		resp := decode[VerifyPaymentResponse](t, w)
		if resp.Success || resp.Status != "abandoned" || resp.Error == "" {
			t.Fatalf("unexpected: %+v", resp)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newFixture()
		f.payments.verifyErr = services.ErrSessionNotFound
		w := do(f.router(), http.MethodGet, "/payments/verify?reference=nope", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status=%d", w.Code)
		}
		if resp := decode[VerifyPaymentResponse](t, w); resp.Code != ErrCodeSessionNotFound {
			t.Fatalf("code=%q", resp.Code)
		}
	})
}

func TestPaystackWebhook(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"R1","amount":5000000,"currency":"NGN"}}`)

	t.Run("bad signature is rejected before parsing", func(t *testing.T) {
		f := newFixture()
		w := do(f.router(), http.MethodPost, "/webhooks/paystack", body, map[string]string{
			paystack.SignatureHeader: paystack.Sign(body, "wrong"),
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", w.Code)
		}
		if len(f.payments.events) != 0 {
			t.Fatalf("event must not be dispatched")
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		f := newFixture()
		w := do(f.router(), http.MethodPost, "/webhooks/paystack", body, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("valid signature dispatches", func(t *testing.T) {
		f := newFixture()
		w := do(f.router(), http.MethodPost, "/webhooks/paystack", body, map[string]string{
			paystack.SignatureHeader: paystack.Sign(body, paystackKey),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		if len(f.payments.events) != 1 || f.payments.events[0].Event != paystack.EventChargeSuccess {
			t.Fatalf("unexpected events: %+v", f.payments.events)
		}
	})

	t.Run("processing failure still acknowledged", func(t *testing.T) {
		f := newFixture()
		f.payments.eventErr = &services.PersistenceError{Op: "x", Err: errors.New("locked")}
		w := do(f.router(), http.MethodPost, "/webhooks/paystack", body, map[string]string{
			paystack.SignatureHeader: paystack.Sign(body, paystackKey),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		if ack := decode[WebhookAck](t, w); !ack.Received {
			t.Fatalf("expected received=true")
		}
	})

	t.Run("malformed payload acknowledged", func(t *testing.T) {
		f := newFixture()
		bad := []byte(`{not json`)
		w := do(f.router(), http.MethodPost, "/webhooks/paystack", bad, map[string]string{
			paystack.SignatureHeader: paystack.Sign(bad, paystackKey),
		})
		if w.Code != http.StatusOK || len(f.payments.events) != 0 {
			t.Fatalf("status=%d events=%d", w.Code, len(f.payments.events))
		}
	})
}

// ---------- booking ----------

func TestVerifyBooking(t *testing.T) {
	t.Run("missing params", func(t *testing.T) {
		f := newFixture()
		w := do(f.router(), http.MethodGet, "/booking/verify?sessionId="+testSessionID, nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
		if resp := decode[VerifyBookingResponse](t, w); resp.Valid {
			t.Fatalf("expected valid=false")
		}
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture()
		f.tokens.verifyErr = services.ErrTokenExpired
		w := do(f.router(), http.MethodGet, "/booking/verify?sessionId="+testSessionID+"&token=abc", nil, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status=%d", w.Code)
		}
		resp := decode[VerifyBookingResponse](t, w)
		if resp.Valid || resp.Code != ErrCodeTokenExpired || resp.Reason != "token expired" {
			t.Fatalf("unexpected: %+v", resp)
		}
	})

	t.Run("valid", func(t *testing.T) {
		f := newFixture()
		f.tokens.sess = &domain.Session{ID: testSessionID, CustomerName: "Ada Obi", CustomerEmail: "ada@example.com"}
		w := do(f.router(), http.MethodGet, "/booking/verify?sessionId="+testSessionID+"&token=tok-secret-xyz", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		resp := decode[VerifyBookingResponse](t, w)
		if !resp.Valid || resp.Session == nil {
			t.Fatalf("unexpected: %+v", resp)
		}
		if !strings.Contains(resp.Session.SchedulingURL, "utm_content="+testSessionID) {
			t.Fatalf("scheduling url missing session tag: %s", resp.Session.SchedulingURL)
		}
		if strings.Contains(w.Body.String(), "tok-secret-xyz") {
			t.Fatalf("token must not be echoed: %s", w.Body.String())
		}
	})
}

func TestCalendlyWebhook(t *testing.T) {
	body := []byte(`{"event":"invitee.created","payload":{"event":"https://api.calendly.com/scheduled_events/E1","tracking":{"utm_content":"` + testSessionID + `"}}}`)

	t.Run("timestamped signature", func(t *testing.T) {
		f := newFixture()
		f.calendar.outcome = services.CalendarBooked
		w := do(f.router(), http.MethodPost, "/webhooks/calendly", body, map[string]string{
			calendly.SignatureHeader: calendly.SignTimestamped(body, calendlyKey, f.now.Add(-time.Minute)),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		ack := decode[WebhookAck](t, w)
		if ack.Outcome != string(services.CalendarBooked) {
			t.Fatalf("outcome=%q", ack.Outcome)
		}
		if len(f.calendar.events) != 1 || f.calendar.events[0].Payload.Tracking.SessionID() != testSessionID {
			t.Fatalf("unexpected events: %+v", f.calendar.events)
		}
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		f := newFixture()
		w := do(f.router(), http.MethodPost, "/webhooks/calendly", body, map[string]string{
			calendly.SignatureHeader: calendly.SignTimestamped(body, calendlyKey, f.now.Add(-time.Hour)),
		})
		if w.Code != http.StatusUnauthorized || len(f.calendar.events) != 0 {
			t.Fatalf("status=%d events=%d", w.Code, len(f.calendar.events))
		}
	})

	t.Run("processing failure still acknowledged", func(t *testing.T) {
		f := newFixture()
		f.calendar.err = services.ErrSessionNotFound
		w := do(f.router(), http.MethodPost, "/webhooks/calendly", body, map[string]string{
			calendly.SignatureHeader: calendly.Sign(body, calendlyKey),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

// ---------- cron ----------

func TestRunSweep(t *testing.T) {
	f := newFixture()
	f.sweeps.res = services.SweepResult{Processed: 3, Sent: 2, Failed: 1}
	r := f.router()

	w := do(r, http.MethodPost, "/cron/meeting-reminders", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := decode[services.SweepResult](t, w); got != f.sweeps.res {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(f.sweeps.names) != 1 || f.sweeps.names[0] != services.SweepReminders {
		t.Fatalf("unexpected sweep: %v", f.sweeps.names)
	}

	f.sweeps.err = &services.PersistenceError{Op: "list", Err: errors.New("gone")}
	w = do(r, http.MethodPost, "/cron/abandoned-payments", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

// ---------- admin ----------

func TestListSessions_PaginatesWithETag(t *testing.T) {
	f := newFixture()
	last := f.now
	f.sessions.last = &last
	for i := 0; i < 3; i++ {
		f.sessions.items = append(f.sessions.items, domain.Session{ID: string(rune('a' + i))})
	}
	r := f.router()

	w := do(r, http.MethodGet, "/admin/sessions?page=1&page_size=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[ListSessionsResponse](t, w)
	if len(resp.Sessions) != 2 || resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag")
	}

	w = do(r, http.MethodGet, "/admin/sessions?page=1&page_size=2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status=%d", w.Code)
	}

	// a different page never matches the first page's tag
	w = do(r, http.MethodGet, "/admin/sessions?page=2&page_size=2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	f := newFixture()
	f.sessions.byID[testSessionID] = &domain.Session{ID: testSessionID}
	r := f.router()

	if w := do(r, http.MethodGet, "/admin/sessions/not-a-uuid", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if w := do(r, http.MethodGet, "/admin/sessions/00000000-0000-0000-0000-000000000000", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if w := do(r, http.MethodGet, "/admin/sessions/"+testSessionID, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReissueBookingToken(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		f := newFixture()
		f.tokens.sess = &domain.Session{ID: testSessionID}
		f.tokens.link = "https://book.example.com/schedule?sessionId=x&token=y"
		w := do(f.router(), http.MethodPost, "/admin/sessions/"+testSessionID+"/booking-token", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		resp := decode[ReissueResponse](t, w)
		if resp.BookingLink != f.tokens.link || !resp.EmailSent {
			t.Fatalf("unexpected: %+v", resp)
		}
	})

	t.Run("email failed keeps link", func(t *testing.T) {
		f := newFixture()
		f.tokens.sess = &domain.Session{ID: testSessionID}
		f.tokens.link = "https://book.example.com/schedule?sessionId=x&token=y"
		f.tokens.reissueErr = &services.UpstreamError{Provider: "notify", Err: errors.New("smtp down")}
		w := do(f.router(), http.MethodPost, "/admin/sessions/"+testSessionID+"/booking-token", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		if resp := decode[ReissueResponse](t, w); resp.EmailSent || resp.BookingLink == "" {
			t.Fatalf("unexpected: %+v", resp)
		}
	})

	t.Run("unpaid", func(t *testing.T) {
		f := newFixture()
		f.tokens.reissueErr = services.ErrPaymentNotCompleted
		w := do(f.router(), http.MethodPost, "/admin/sessions/"+testSessionID+"/booking-token", nil, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status=%d", w.Code)
		}
	})
}

// ---------- health ----------

func TestHealth(t *testing.T) {
	f := newFixture()
	r := f.router()
	if w := do(r, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	f.ping = errors.New("db down")
	if w := do(r, http.MethodGet, "/health", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}
