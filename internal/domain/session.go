// Package domain defines the persistence models for consultation sessions.
// These types are mapped with GORM and form the core data layer of the
// booking backend.
package domain

import "time"

// Payment statuses. A session leaves pending exactly once; completed is terminal.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentAbandoned = "abandoned"
)

// Scheduling statuses tracked from the calendar provider.
const (
	CalendarNotBooked = "not_booked"
	CalendarBooked    = "booked"
	CalendarCanceled  = "canceled"
)

// Session is one customer's payment-and-booking record. Every transition is
// applied with a conditional write against this row; there is no other
// coordination point.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PaymentReference: gateway reference assigned at creation; unique and immutable.
//   - RecoveryReference: replacement reference minted by the abandoned-payment
//     sweep; completion accepts either reference.
//   - PaymentAmount: minor currency units (kobo, cents).
//   - BookingToken: 64 hex chars, present only once payment is completed.
//   - *EmailSent: one-way sweep guard flags, flipped only after a successful send.
type Session struct {
	ID                string  `json:"id"                 gorm:"type:char(36);primaryKey"`
	PaymentReference  string  `json:"payment_reference"  gorm:"type:varchar(64);not null;uniqueIndex:ux_sessions_payment_reference"`
	RecoveryReference *string `json:"recovery_reference,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_sessions_recovery_reference"`

	CustomerName  string `json:"customer_name"  gorm:"type:varchar(255);not null"`
	CustomerEmail string `json:"customer_email" gorm:"type:varchar(255);not null;index"`
	CustomerPhone string `json:"customer_phone" gorm:"type:varchar(64)"`
	Notes         string `json:"notes"          gorm:"type:text"`

	PaymentStatus     string     `json:"payment_status"    gorm:"type:varchar(16);not null;default:'pending';index:idx_sessions_status_created,priority:1;check:payment_status IN ('pending','completed','failed','abandoned')"`
	PaymentAmount     int64      `json:"payment_amount"    gorm:"not null"`
	PaymentCurrency   string     `json:"payment_currency"  gorm:"type:varchar(3);not null"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CustomerReference string     `json:"customer_reference" gorm:"type:varchar(128)"`
	AuthorizationURL  string     `json:"authorization_url"  gorm:"type:text"`

	BookingToken          *string    `json:"-" gorm:"type:char(64)"`
	BookingTokenExpiresAt *time.Time `json:"booking_token_expires_at,omitempty"`
	BookingTokenUsed      bool       `json:"booking_token_used" gorm:"not null;default:false"`

	CalendlyStatus      string     `json:"calendly_status"       gorm:"type:varchar(16);not null;default:'not_booked';check:calendly_status IN ('not_booked','booked','canceled')"`
	CalendlyEventBooked bool       `json:"calendly_event_booked" gorm:"not null;default:false"`
	CalendlyScheduledAt *time.Time `json:"calendly_scheduled_at,omitempty" gorm:"index"`
	CalendlyEventURI    string     `json:"calendly_event_uri"   gorm:"type:text"`
	CalendlyInviteeURI  string     `json:"calendly_invitee_uri" gorm:"type:text"`
	MeetingURL          string     `json:"meeting_url"          gorm:"type:text"`
	RescheduleURL       string     `json:"reschedule_url"       gorm:"type:text"`
	CancelURL           string     `json:"cancel_url"           gorm:"type:text"`

	AbandonedEmailSent         bool `json:"abandoned_email_sent"          gorm:"not null;default:false"`
	IncompleteBookingEmailSent bool `json:"incomplete_booking_email_sent" gorm:"not null;default:false"`
	ReminderEmailSent          bool `json:"reminder_email_sent"           gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_sessions_status_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// IsPaid reports whether the payment reached its terminal completed state.
func (s *Session) IsPaid() bool { return s.PaymentStatus == PaymentCompleted }

// EventDetails is the scheduling data fetched from the calendar provider
// after a booking webhook arrives.
type EventDetails struct {
	EventURI      string
	InviteeURI    string
	ScheduledAt   time.Time
	MeetingURL    string
	RescheduleURL string
	CancelURL     string
}
