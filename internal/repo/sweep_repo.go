// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the candidate selectors and guard-flag
// writers used by the reconciliation sweeps.
//
// Every flag writer is conditioned on the flag still being false, so two
// sweep runs racing over the same row flip it exactly once.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
)

// FindAbandonedCandidates returns pending sessions created before cutoff
// that have not had a recovery email yet, oldest first.
func FindAbandonedCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ? AND abandoned_email_sent = ?", domain.PaymentPending, cutoff.UTC(), false).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SetRecoveryReference stores the replacement reference and checkout URL
// for a session still eligible for recovery.
func SetRecoveryReference(ctx context.Context, db *gorm.DB, id, ref, authURL string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND payment_status = ? AND abandoned_email_sent = ?", id, domain.PaymentPending, false).
		Updates(map[string]any{
			"recovery_reference": ref,
			"authorization_url":  authURL,
			"updated_at":         time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// MarkAbandoned sets abandoned_email_sent and status=abandoned together.
func MarkAbandoned(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND payment_status = ? AND abandoned_email_sent = ?", id, domain.PaymentPending, false).
		Updates(map[string]any{
			"abandoned_email_sent": true,
			"payment_status":       domain.PaymentAbandoned,
			"updated_at":           time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// FindIncompleteBookingCandidates returns paid sessions with no booking that
// were paid before cutoff and have not been reminded yet.
func FindIncompleteBookingCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("payment_status = ? AND calendly_status = ? AND paid_at < ? AND incomplete_booking_email_sent = ?",
			domain.PaymentCompleted, domain.CalendarNotBooked, cutoff.UTC(), false).
		Order("paid_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkIncompleteBookingEmailSent flips the incomplete-booking guard flag.
func MarkIncompleteBookingEmailSent(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND incomplete_booking_email_sent = ?", id, false).
		Updates(map[string]any{
			"incomplete_booking_email_sent": true,
			"updated_at":                    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// FindReminderCandidates returns booked sessions whose meeting starts within
// [from, to] and that have not been reminded yet, soonest first.
func FindReminderCandidates(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("calendly_status = ? AND calendly_event_booked = ? AND reminder_email_sent = ? AND calendly_scheduled_at BETWEEN ? AND ?",
			domain.CalendarBooked, true, false, from.UTC(), to.UTC()).
		Order("calendly_scheduled_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkReminderEmailSent flips the pre-meeting reminder guard flag.
func MarkReminderEmailSent(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND reminder_email_sent = ?", id, false).
		Updates(map[string]any{
			"reminder_email_sent": true,
			"updated_at":          time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
