package services

import (
	"context"

	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/notify"
)

// PaymentGateway is the slice of the payment provider the services use.
// *paystack.Client satisfies it.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// EventFetcher reads scheduled event details. *calendly.Client satisfies it.
type EventFetcher interface {
	GetScheduledEvent(ctx context.Context, eventURI string) (*calendly.ScheduledEvent, error)
}

// Notifier is the notification dispatcher contract.
type Notifier = notify.Notifier
