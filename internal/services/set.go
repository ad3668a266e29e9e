// Package services – wiring
//
// NewSet builds every service from configuration so the HTTP server and the
// sweep CLI share one construction path.
package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/config"
)

// Deps are the collaborators shared by all services.
type Deps struct {
	DB       *gorm.DB
	Gateway  PaymentGateway
	Events   EventFetcher
	Notifier Notifier
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Set holds the constructed services.
type Set struct {
	Payments *PaymentService
	Tokens   *TokenService
	Calendar *CalendarService
	Sweeps   *SweepService
	Sessions *SessionService
}

// NewSet wires services from cfg and d.
func NewSet(cfg config.Config, d Deps) *Set {
	tokens := &TokenService{
		DB:         d.DB,
		TTL:        cfg.BookingTokenTTL,
		Notifier:   d.Notifier,
		AppBaseURL: cfg.AppBaseURL,
		Now:        d.Now,
	}
	return &Set{
		Tokens: tokens,
		Payments: &PaymentService{
			DB:              d.DB,
			Gateway:         d.Gateway,
			Tokens:          tokens,
			Notifier:        d.Notifier,
			AppBaseURL:      cfg.AppBaseURL,
			CallbackURL:     cfg.Paystack.CallbackURL,
			TeamEmail:       cfg.Notify.TeamEmail,
			ReferencePrefix: cfg.ReferencePrefix,
			Price:           cfg.PriceMinorUnits(),
			Currency:        cfg.Currency,
			MaxNameRunes:    255,
			MaxNotesRunes:   4000,
			Now:             d.Now,
		},
		Calendar: &CalendarService{
			DB:        d.DB,
			Tokens:    tokens,
			Events:    d.Events,
			Notifier:  d.Notifier,
			TeamEmail: cfg.Notify.TeamEmail,
		},
		Sweeps: &SweepService{
			DB:              d.DB,
			Gateway:         d.Gateway,
			Tokens:          tokens,
			Notifier:        d.Notifier,
			AppBaseURL:      cfg.AppBaseURL,
			CallbackURL:     cfg.Paystack.CallbackURL,
			ReferencePrefix: cfg.ReferencePrefix,
			BatchSize:       cfg.Sweeps.BatchSize,
			AbandonedAfter:  cfg.Sweeps.AbandonedAfter,
			IncompleteAfter: cfg.Sweeps.IncompleteAfter,
			ReminderLead:    cfg.Sweeps.ReminderLead,
			ReminderWindow:  cfg.Sweeps.ReminderWindow,
			Now:             d.Now,
		},
		Sessions: &SessionService{DB: d.DB},
	}
}
