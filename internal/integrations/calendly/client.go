// Package calendly holds the scheduling provider client, webhook payload
// types and signature checks used by the booking flow.
package calendly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrBadEventURI is returned when an event URI has no usable identifier.
var ErrBadEventURI = errors.New("calendly: bad event uri")

// APIError is a non-2xx answer from the scheduling API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendly: http %d: %s", e.StatusCode, e.Message)
}

// Client reads scheduled events with a personal access token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client with a traced transport bounded by timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Location is where the meeting happens. JoinURL is set for video meetings.
type Location struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	JoinURL  string `json:"join_url"`
}

// ScheduledEvent is the subset of the event resource the booking flow uses.
type ScheduledEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  Location  `json:"location"`
}

// MeetingURL returns the join link, falling back to the free-form location.
func (e *ScheduledEvent) MeetingURL() string {
	if e.Location.JoinURL != "" {
		return e.Location.JoinURL
	}
	return e.Location.Location
}

// GetScheduledEvent fetches the event named by eventURI. Only the trailing
// identifier of the URI is used; the request always goes to the configured
// base URL.
func (c *Client) GetScheduledEvent(ctx context.Context, eventURI string) (*ScheduledEvent, error) {
	id, err := eventID(eventURI)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/scheduled_events/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendly: get event: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("calendly: read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		msg := e.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out struct {
		Resource ScheduledEvent `json:"resource"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("calendly: decode event: %w", err)
	}
	if out.Resource.URI == "" {
		out.Resource.URI = eventURI
	}
	return &out.Resource, nil
}

func eventID(eventURI string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(eventURI))
	if err != nil {
		return "", ErrBadEventURI
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "" || id == "." || id == "/" || id == "scheduled_events" {
		return "", ErrBadEventURI
	}
	return id, nil
}
