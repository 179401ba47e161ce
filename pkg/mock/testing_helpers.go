package mock

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	gomock "go.uber.org/mock/gomock"

	"github.com/teamnewpipe/crashreportimporter/internal/storage"
)

// SetupLogger returns a logger whose output is only shown if the test fails.
func SetupLogger(t *testing.T) *slog.Logger {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t.Cleanup(func() {
		if t.Failed() {
			os.Stdout.Write(buf.Bytes()) //nolint:errcheck
		}
	})

	return logger
}

type deliveryMatcher struct {
	hashID string
}

func (m deliveryMatcher) Matches(x interface{}) bool {
	d, ok := x.(storage.Delivery)
	if !ok || d.Record == nil {
		return false
	}
	return d.Record.HashID() == m.hashID
}

func (m deliveryMatcher) String() string {
	return "delivery of record " + m.hashID
}

// NewDeliveryMatcher matches a storage.Delivery by its record's hash.
func NewDeliveryMatcher(hashID string) gomock.Matcher {
	return deliveryMatcher{hashID: hashID}
}

type dateMatcher struct {
	want      time.Time
	tolerance time.Duration
}

func (m dateMatcher) Matches(x interface{}) bool {
	d, ok := x.(storage.Delivery)
	if !ok || d.Record == nil {
		return false
	}
	diff := d.Record.Date.Sub(m.want)
	return diff <= m.tolerance && diff >= -m.tolerance
}

func (m dateMatcher) String() string {
	return "delivery dated " + m.want.String()
}

// NewDateMatcher matches a storage.Delivery whose record date is within
// tolerance of want.
func NewDateMatcher(want time.Time, tolerance time.Duration) gomock.Matcher {
	return dateMatcher{want: want, tolerance: tolerance}
}
