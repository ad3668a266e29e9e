package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tbourn/consult-booking/internal/config"
)

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("notify: publish not confirmed by broker")

// confirmPublisher is the slice of *amqp.Channel the notifier uses.
type confirmPublisher interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// AMQP publishes notifications as JSON to a durable topic exchange with
// routing key "notify.<kind>". Rendering happens in the consumer.
//
// The broker link is re-established lazily: a Send that finds the channel
// closed, or whose publish fails with an AMQP link error, redials once and
// retries before giving up.
type AMQP struct {
	cfg            config.AMQPConfig
	conn           *amqp.Connection
	ch             *amqp.Channel
	exchange       string
	confirmTimeout time.Duration

	mu      sync.Mutex
	publish func(ctx context.Context, key string, body []byte) error
	// reconnect replaces conn, ch and publish. Replaced in tests.
	reconnect func() error
}

// DialAMQP connects, declares the exchange and puts the channel in confirm
// mode.
func DialAMQP(cfg config.AMQPConfig) (*AMQP, error) {
	a := &AMQP{cfg: cfg, exchange: cfg.Exchange, confirmTimeout: cfg.ConfirmTimeout}
	a.reconnect = a.connect
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

// connect opens a fresh connection and confirm-mode channel and swaps them
// in, closing whatever was there before.
func (a *AMQP) connect() error {
	conn, err := amqp.Dial(a.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}
	_ = a.Close()
	a.conn, a.ch = conn, ch
	a.publish = a.publisherFor(ch)
	return nil
}

// linkDown reports whether the current channel or connection is closed.
func (a *AMQP) linkDown() bool {
	return (a.ch != nil && a.ch.IsClosed()) || (a.conn != nil && a.conn.IsClosed())
}

// isLinkError reports whether err came from a closed or failed broker link
// rather than from the broker refusing the message.
func isLinkError(err error) bool {
	var ae *amqp.Error
	return errors.Is(err, amqp.ErrClosed) || errors.As(err, &ae)
}

func (a *AMQP) publisherFor(p confirmPublisher) func(context.Context, string, []byte) error {
	return func(ctx context.Context, key string, body []byte) error {
		dc, err := p.PublishWithDeferredConfirmWithContext(ctx, a.exchange, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		if err != nil {
			return err
		}
		if dc == nil {
			return nil
		}
		wctx := ctx
		if a.confirmTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, a.confirmTimeout)
			defer cancel()
		}
		ok, err := dc.WaitContext(wctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotConfirmed
		}
		return nil
	}
}

// RoutingKey returns the routing key used for kind.
func RoutingKey(kind Kind) string {
	return "notify." + string(kind)
}

// Send publishes n and waits for the broker confirm.
func (a *AMQP) Send(ctx context.Context, n Notification) error {
	if err := validate(n); err != nil {
		return err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.linkDown() && a.reconnect != nil {
		if err := a.reconnect(); err != nil {
			return fmt.Errorf("notify: publish %s: reconnect: %w", n.Kind, err)
		}
	}
	err = a.publish(ctx, RoutingKey(n.Kind), body)
	if err != nil && isLinkError(err) && a.reconnect != nil {
		if rerr := a.reconnect(); rerr != nil {
			return fmt.Errorf("notify: publish %s: %w (reconnect: %v)", n.Kind, err, rerr)
		}
		err = a.publish(ctx, RoutingKey(n.Kind), body)
	}
	if err != nil {
		return fmt.Errorf("notify: publish %s: %w", n.Kind, err)
	}
	return nil
}

// Close releases the channel and connection.
func (a *AMQP) Close() error {
	if a.ch != nil && !a.ch.IsClosed() {
		_ = a.ch.Close()
	}
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn.Close()
	}
	return nil
}
