package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Calendly-Webhook-Signature"

// Webhook event types.
const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
)

// Event is the webhook envelope.
type Event struct {
	Event     string  `json:"event"`
	CreatedAt string  `json:"created_at"`
	Payload   Invitee `json:"payload"`
}

// Invitee is the payload of invitee.* events.
type Invitee struct {
	URI           string   `json:"uri"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	Event         string   `json:"event"`
	Status        string   `json:"status"`
	CancelURL     string   `json:"cancel_url"`
	RescheduleURL string   `json:"reschedule_url"`
	Tracking      Tracking `json:"tracking"`

	// A reschedule arrives as invitee.canceled with Rescheduled set and
	// NewInvitee pointing at the replacement, plus invitee.created for the
	// replacement carrying OldInvitee.
	Rescheduled bool   `json:"rescheduled"`
	OldInvitee  string `json:"old_invitee"`
	NewInvitee  string `json:"new_invitee"`

	Cancellation *struct {
		Reason     string `json:"reason"`
		CanceledBy string `json:"canceled_by"`
	} `json:"cancellation,omitempty"`
}

// Tracking holds the UTM values passed through the scheduling link.
type Tracking struct {
	UTMCampaign    *string `json:"utm_campaign"`
	UTMSource      *string `json:"utm_source"`
	UTMMedium      *string `json:"utm_medium"`
	UTMContent     *string `json:"utm_content"`
	UTMTerm        *string `json:"utm_term"`
	SalesforceUUID *string `json:"salesforce_uuid"`
}

// SessionID returns the booking session carried in tracking, preferring
// utm_content over salesforce_uuid.
func (t Tracking) SessionID() string {
	for _, p := range []*string{t.UTMContent, t.SalesforceUUID} {
		if p != nil {
			if v := strings.TrimSpace(*p); v != "" {
				return v
			}
		}
	}
	return ""
}

// Sign returns the plain hex HMAC-SHA256 of body.
func Sign(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignTimestamped returns a header in the "t=<unix>,v1=<hex>" form.
func SignTimestamped(body []byte, key string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(t + "."))
	mac.Write(body)
	return "t=" + t + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts either a plain hex MAC of body or the
// "t=<unix>,v1=<hex>" form, where the MAC covers t + "." + body and t must
// be within tolerance of now. A zero tolerance disables the age check.
func VerifySignature(body []byte, header, key string, tolerance time.Duration, now time.Time) bool {
	header = strings.TrimSpace(header)
	if key == "" || header == "" {
		return false
	}

	if !strings.Contains(header, "=") {
		return equalHex(header, Sign(body, key))
	}

	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age < -tolerance || age > tolerance {
			return false
		}
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	return equalHex(v1, hex.EncodeToString(mac.Sum(nil)))
}

func equalHex(got, want string) bool {
	a, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	b, _ := hex.DecodeString(want)
	return hmac.Equal(a, b)
}
