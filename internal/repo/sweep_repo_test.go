package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/consult-booking/internal/domain"
)

func TestAbandonedCandidates_AndMarkAbandoned(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()
	now := time.Now().UTC()

	old := newSession("old", "R-old")
	old.CreatedAt = now.Add(-30 * time.Hour)
	fresh := newSession("fresh", "R-fresh")
	fresh.CreatedAt = now.Add(-2 * time.Hour)
	paid := newSession("paid", "R-paid")
	paid.CreatedAt = now.Add(-30 * time.Hour)
	paid.PaymentStatus = domain.PaymentCompleted
	for _, s := range []*domain.Session{old, fresh, paid} {
		if err := CreateSession(ctx, db, s); err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}

	got, err := FindAbandonedCandidates(ctx, db, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("FindAbandonedCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "old" {
		t.Fatalf("expected only 'old', got %+v", got)
	}

	if n, err := MarkAbandoned(ctx, db, "old"); err != nil || n != 1 {
		t.Fatalf("MarkAbandoned: n=%d err=%v", n, err)
	}
	if n, _ := MarkAbandoned(ctx, db, "old"); n != 0 {
		t.Fatalf("MarkAbandoned must flip once")
	}
	s, _ := GetSession(ctx, db, "old")
	if !s.AbandonedEmailSent || s.PaymentStatus != domain.PaymentAbandoned {
		t.Fatalf("flag and status must move together: %+v", s)
	}

	got, _ = FindAbandonedCandidates(ctx, db, now.Add(-24*time.Hour), 10)
	if len(got) != 0 {
		t.Fatalf("flagged session must not be selected again: %+v", got)
	}

	// Recovery reference can no longer be rewritten once flagged.
	if n, _ := SetRecoveryReference(ctx, db, "old", "R-old-2", "u"); n != 0 {
		t.Fatalf("recovery reference must be frozen after the email was sent")
	}
}

func TestIncompleteBookingCandidates(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()
	now := time.Now().UTC()
	longAgo := now.Add(-5 * time.Hour)
	recent := now.Add(-time.Hour)

	stale := newSession("stale", "R-stale")
	stale.PaymentStatus = domain.PaymentCompleted
	stale.PaidAt = &longAgo
	justPaid := newSession("just", "R-just")
	justPaid.PaymentStatus = domain.PaymentCompleted
	justPaid.PaidAt = &recent
	booked := newSession("booked", "R-booked")
	booked.PaymentStatus = domain.PaymentCompleted
	booked.PaidAt = &longAgo
	booked.CalendlyStatus = domain.CalendarBooked
	for _, s := range []*domain.Session{stale, justPaid, booked} {
		if err := CreateSession(ctx, db, s); err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}

	got, err := FindIncompleteBookingCandidates(ctx, db, now.Add(-3*time.Hour), 10)
	if err != nil || len(got) != 1 || got[0].ID != "stale" {
		t.Fatalf("expected only 'stale', got %+v err=%v", got, err)
	}
	if n, _ := MarkIncompleteBookingEmailSent(ctx, db, "stale"); n != 1 {
		t.Fatalf("flag flip expected")
	}
	if n, _ := MarkIncompleteBookingEmailSent(ctx, db, "stale"); n != 0 {
		t.Fatalf("flag must flip once")
	}
	got, _ = FindIncompleteBookingCandidates(ctx, db, now.Add(-3*time.Hour), 10)
	if len(got) != 0 {
		t.Fatalf("flagged session must not be selected again")
	}
}

func TestReminderCandidates_Window(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id string, in time.Duration, booked bool) {
		s := newSession(id, "R-"+id)
		s.PaymentStatus = domain.PaymentCompleted
		at := now.Add(in)
		s.CalendlyScheduledAt = &at
		if booked {
			s.CalendlyStatus = domain.CalendarBooked
			s.CalendlyEventBooked = true
		} else {
			s.CalendlyStatus = domain.CalendarCanceled
		}
		if err := CreateSession(ctx, db, s); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	mk("inside", 24*time.Hour, true)
	mk("too-soon", 22*time.Hour, true)
	mk("too-late", 26*time.Hour, true)
	mk("canceled", 24*time.Hour, false)

	got, err := FindReminderCandidates(ctx, db, now.Add(23*time.Hour), now.Add(25*time.Hour), 10)
	if err != nil || len(got) != 1 || got[0].ID != "inside" {
		t.Fatalf("expected only 'inside', got %+v err=%v", got, err)
	}
	if n, _ := MarkReminderEmailSent(ctx, db, "inside"); n != 1 {
		t.Fatalf("flag flip expected")
	}
	if n, _ := MarkReminderEmailSent(ctx, db, "inside"); n != 0 {
		t.Fatalf("flag must flip once")
	}
	got, _ = FindReminderCandidates(ctx, db, now.Add(23*time.Hour), now.Add(25*time.Hour), 10)
	if len(got) != 0 {
		t.Fatalf("reminded session must not be selected again")
	}
}
