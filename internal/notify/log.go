package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// Log writes notifications to the logger instead of delivering them.
type Log struct{}

// NewLog returns the logging backend.
func NewLog() *Log { return &Log{} }

// Send logs the rendered subject. It fails only on invalid input.
func (Log) Send(ctx context.Context, n Notification) error {
	if err := validate(n); err != nil {
		return err
	}
	subject, _, err := Render(n, language.Und)
	if err != nil {
		return err
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}
	l.Info().
		Str("kind", string(n.Kind)).
		Str("to", n.To).
		Str("session_id", n.Data.SessionID).
		Str("subject", subject).
		Msg("notification")
	return nil
}
