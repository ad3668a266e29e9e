package calendly

import "net/url"

// SchedulingLink prefills the invitee on the public scheduling page and tags
// the booking with sessionID through utm_content.
func SchedulingLink(base, sessionID, name, email string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if name != "" {
		q.Set("name", name)
	}
	if email != "" {
		q.Set("email", email)
	}
	q.Set("utm_source", "booking")
	q.Set("utm_content", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
