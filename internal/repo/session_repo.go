// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// State transitions are conditional writes. Each one carries its
// precondition in the WHERE clause and reports RowsAffected so the caller
// can tell whether it won the transition. No function here reads a row and
// then writes it back.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Unique violations on insert are reported as ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// CompletionFields carries the gateway-confirmed payment data written by
// MarkPaymentCompleted.
type CompletionFields struct {
	Amount            int64
	Currency          string
	PaidAt            time.Time
	CustomerReference string
}

// CreateSession inserts a new pending session. CreatedAt/UpdatedAt are set
// to UTC now when zero.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.PaymentStatus == "" {
		s.PaymentStatus = domain.PaymentPending
	}
	if s.CalendlyStatus == "" {
		s.CalendlyStatus = domain.CalendarNotBooked
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSession fetches a single session by id.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByReference fetches the session owning ref, matching either the
// original payment reference or a recovery reference.
func GetSessionByReference(ctx context.Context, db *gorm.DB, ref string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("payment_reference = ? OR recovery_reference = ?", ref, ref).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByEventURI fetches the session linked to a scheduled event.
func GetSessionByEventURI(ctx context.Context, db *gorm.DB, eventURI string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("calendly_event_uri = ?", eventURI).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByInviteeURI fetches the session whose booking belongs to
// inviteeURI.
func GetSessionByInviteeURI(ctx context.Context, db *gorm.DB, inviteeURI string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("calendly_invitee_uri = ?", inviteeURI).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSessions returns the total number of sessions.
func CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Session{}).Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions, most recent first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkPaymentCompleted moves the session owning ref to completed and fills
// the payment fields, but only if it is not completed already. It returns
// the number of rows changed: 1 for the caller that performed the
// transition, 0 for everybody else.
func MarkPaymentCompleted(ctx context.Context, db *gorm.DB, ref string, f CompletionFields) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("(payment_reference = ? OR recovery_reference = ?) AND payment_status <> ?", ref, ref, domain.PaymentCompleted).
		Updates(map[string]any{
			"payment_status":     domain.PaymentCompleted,
			"payment_amount":     f.Amount,
			"payment_currency":   f.Currency,
			"paid_at":            f.PaidAt.UTC(),
			"customer_reference": f.CustomerReference,
			"updated_at":         time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// MarkPaymentFailed records a declined charge for a still-pending session.
func MarkPaymentFailed(ctx context.Context, db *gorm.DB, ref string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("(payment_reference = ? OR recovery_reference = ?) AND payment_status = ?", ref, ref, domain.PaymentPending).
		Updates(map[string]any{
			"payment_status": domain.PaymentFailed,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SetAuthorizationURL stores the checkout URL returned by the gateway.
func SetAuthorizationURL(ctx context.Context, db *gorm.DB, id, authURL string) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"authorization_url": authURL,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// SetBookingToken stores a fresh token for a completed session, replacing
// any previous one and clearing the used flag. Sessions that are not
// completed are left untouched (0 rows).
func SetBookingToken(ctx context.Context, db *gorm.DB, id, token string, expiresAt time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND payment_status = ?", id, domain.PaymentCompleted).
		Updates(map[string]any{
			"booking_token":            token,
			"booking_token_expires_at": expiresAt.UTC(),
			"booking_token_used":       false,
			"updated_at":               time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// ConsumeBookingToken marks the token used and the event booked in a single
// write. Only the first caller presenting the matching unused token changes
// the row.
func ConsumeBookingToken(ctx context.Context, db *gorm.DB, id, token string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND booking_token = ? AND booking_token_used = ?", id, token, false).
		Updates(map[string]any{
			"booking_token_used":    true,
			"calendly_event_booked": true,
			"calendly_status":       domain.CalendarBooked,
			"updated_at":            time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SaveEventDetails persists the scheduling data fetched from the calendar
// provider. Empty values leave the stored column unchanged.
func SaveEventDetails(ctx context.Context, db *gorm.DB, id string, d domain.EventDetails) error {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if d.EventURI != "" {
		fields["calendly_event_uri"] = d.EventURI
	}
	if d.InviteeURI != "" {
		fields["calendly_invitee_uri"] = d.InviteeURI
	}
	if !d.ScheduledAt.IsZero() {
		fields["calendly_scheduled_at"] = d.ScheduledAt.UTC()
	}
	if d.MeetingURL != "" {
		fields["meeting_url"] = d.MeetingURL
	}
	if d.RescheduleURL != "" {
		fields["reschedule_url"] = d.RescheduleURL
	}
	if d.CancelURL != "" {
		fields["cancel_url"] = d.CancelURL
	}
	res := db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelBooking records a calendar cancellation. The token stays used.
func CancelBooking(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND calendly_status <> ?", id, domain.CalendarCanceled).
		Updates(map[string]any{
			"calendly_status":       domain.CalendarCanceled,
			"calendly_event_booked": false,
			"updated_at":            time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// RescheduleBooking moves a booked session from oldInviteeURI to the
// replacement invitee in d. The token is not touched: it stays used. The
// start time and meeting URL are cleared until the new event's details are
// saved, and the meeting reminder is re-armed. Only a session still linked
// to oldInviteeURI changes, so a redelivered reschedule returns 0.
func RescheduleBooking(ctx context.Context, db *gorm.DB, id, oldInviteeURI string, d domain.EventDetails) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND calendly_invitee_uri = ? AND booking_token_used = ?", id, oldInviteeURI, true).
		Updates(map[string]any{
			"calendly_status":       domain.CalendarBooked,
			"calendly_event_booked": true,
			"calendly_event_uri":    d.EventURI,
			"calendly_invitee_uri":  d.InviteeURI,
			"calendly_scheduled_at": nil,
			"meeting_url":           "",
			"reschedule_url":        d.RescheduleURL,
			"cancel_url":            d.CancelURL,
			"reminder_email_sent":   false,
			"updated_at":            time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
