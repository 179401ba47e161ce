package record

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// ErrDateUnresolved is returned when no strategy yields a usable timestamp.
var ErrDateUnresolved = errors.New("could not resolve event date")

// DefaultRelays are the mail hosts whose Received header stamps are trusted.
var DefaultRelays = []string{"mail.orange-it.de", "mail.commandnotfound.org"}

// Devices with a reset clock report dates around the epoch.
const minPlausibleYear = 2010

const reportTimeLayout = "2006-01-02 15:04"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// DateResolver picks the event timestamp of a crash report.
type DateResolver struct {
	Relays []string
}

// Resolve tries, in order: the report's ISO-8601 time, the report's
// "YYYY-MM-DD HH:MM" time, the Date header and the trusted relay's Received
// header.
func (r DateResolver) Resolve(info map[string]any, header gomail.Header) (time.Time, error) {
	if raw, ok := info["time"].(string); ok {
		if t, ok := parseISO(raw); ok {
			return t, nil
		}
		if t, err := time.Parse(reportTimeLayout, raw); err == nil && t.Year() >= minPlausibleYear {
			return t, nil
		}
	}

	if t, err := header.Date(); err == nil && t.Year() >= minPlausibleYear {
		return t, nil
	}

	if t, err := r.fromReceived(header); err == nil {
		return t, nil
	}

	return time.Time{}, ErrDateUnresolved
}

func parseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r DateResolver) fromReceived(header gomail.Header) (time.Time, error) {
	relays := r.Relays
	if len(relays) == 0 {
		relays = DefaultRelays
	}

	fields := header.FieldsByKey("Received")
	for fields.Next() {
		value := strings.Join(strings.Fields(fields.Value()), " ")
		if !signedByRelay(value, relays) {
			continue
		}
		idx := strings.LastIndex(value, ";")
		if idx < 0 {
			return time.Time{}, fmt.Errorf("received header without date: %q", value)
		}
		return netmail.ParseDate(strings.TrimSpace(value[idx+1:]))
	}
	return time.Time{}, errors.New("no trusted received header")
}

func signedByRelay(value string, relays []string) bool {
	for _, relay := range relays {
		if strings.Contains(value, fmt.Sprintf("by %s (Dovecot) with LMTP id", relay)) {
			return true
		}
	}
	return false
}
