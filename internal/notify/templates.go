package notify

import (
	"bytes"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type tmpl struct {
	subject *template.Template
	body    *template.Template
}

func mustTmpl(kind Kind, subject, body string) tmpl {
	return tmpl{
		subject: template.Must(template.New(string(kind) + ".subject").Parse(subject)),
		body:    template.Must(template.New(string(kind) + ".body").Parse(body)),
	}
}

// Plain-text only. Branded HTML is rendered downstream when the AMQP backend
// is used.
var templates = map[Kind]tmpl{
	PaymentConfirmation: mustTmpl(PaymentConfirmation,
		`Payment received: book your consultation`,
		`Hi {{.Greeting}},

We received your payment of {{.Amount}} {{.Currency}} (reference {{.Reference}}).

Pick a time for your consultation here:
{{.BookingLink}}

This link works once and expires in 24 hours.
`),
	PaymentTeamNotification: mustTmpl(PaymentTeamNotification,
		`New paid consultation: {{.CustomerName}}`,
		`Customer: {{.CustomerName}} <{{.CustomerEmail}}>{{if .CustomerPhone}}
Phone: {{.CustomerPhone}}{{end}}
Reference: {{.Reference}}
Amount: {{.Amount}} {{.Currency}}
Session: {{.SessionID}}
`),
	CalendarConfirmation: mustTmpl(CalendarConfirmation,
		`Your consultation is booked`,
		`Hi {{.Greeting}},

Your consultation is confirmed for {{.When}}.
{{if .MeetingURL}}
Join: {{.MeetingURL}}
{{end}}{{if .RescheduleURL}}
Reschedule: {{.RescheduleURL}}
{{end}}{{if .CancelURL}}Cancel: {{.CancelURL}}
{{end}}`),
	PaymentRecovery: mustTmpl(PaymentRecovery,
		`Complete your consultation payment`,
		`Hi {{.Greeting}},

Your consultation booking is waiting for payment. You can finish it here:
{{.PaymentLink}}
`),
	IncompleteBookingReminder: mustTmpl(IncompleteBookingReminder,
		`Reminder: pick a time for your consultation`,
		`Hi {{.Greeting}},

Your payment is confirmed but no time has been booked yet. Choose a slot here:
{{.BookingLink}}
`),
	MeetingReminder: mustTmpl(MeetingReminder,
		`Reminder: your consultation is tomorrow`,
		`Hi {{.Greeting}},

This is a reminder of your consultation on {{.When}}.
{{if .MeetingURL}}
Join: {{.MeetingURL}}
{{end}}{{if .RescheduleURL}}
Need another time? {{.RescheduleURL}}
{{end}}`),
	BookingCanceledTeam: mustTmpl(BookingCanceledTeam,
		`Booking canceled: {{.CustomerName}}`,
		`The consultation for {{.CustomerName}} <{{.CustomerEmail}}> was canceled.
Session: {{.SessionID}}
Reference: {{.Reference}}

The booking token is not re-enabled. Re-issue it from the admin API if the customer should rebook.
`),
}

type view struct {
	Data
	Greeting string
	When     string
}

// Render returns the subject and plain-text body for n.
func Render(n Notification, locale language.Tag) (subject, body string, err error) {
	t, ok := templates[n.Kind]
	if !ok {
		return "", "", ErrUnknownKind
	}
	v := view{Data: n.Data, Greeting: greeting(n.Data.CustomerName, locale)}
	if n.Data.ScheduledAt != nil {
		v.When = n.Data.ScheduledAt.UTC().Format("Monday, 2 January 2006 at 15:04 MST")
	}

	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, v); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&bb, v); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}

// greeting title-cases the first name, or falls back to "there".
func greeting(name string, locale language.Tag) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	if locale == language.Und {
		locale = language.English
	}
	return cases.Title(locale).String(fields[0])
}
