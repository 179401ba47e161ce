// Package record builds the canonical crash record of an inbound report.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/teamnewpipe/crashreportimporter/internal/payload"
	"github.com/teamnewpipe/crashreportimporter/internal/rawmail"
)

const hashTimeLayout = "20060102150405"

// CrashRecord is the normalized form of one crash report mail.
type CrashRecord struct {
	Sender    string
	Recipient string
	Date      time.Time
	Plaintext string
	// Info is the diagnostic object sent by the app, as parsed.
	Info map[string]any

	hashID string
}

type Option func(*builder)

type builder struct {
	resolver DateResolver
}

// WithRelays overrides the relay hosts trusted for Received header dates.
func WithRelays(relays []string) Option {
	return func(b *builder) {
		b.resolver.Relays = relays
	}
}

// New extracts the body and diagnostic JSON of m and resolves its date.
func New(m *rawmail.Mail, opts ...Option) (*CrashRecord, error) {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}

	plaintext, err := rawmail.ExtractBody(m)
	if err != nil {
		return nil, err
	}
	info, err := payload.Extract(plaintext)
	if err != nil {
		return nil, err
	}
	date, err := b.resolver.Resolve(info, m.Header)
	if err != nil {
		return nil, err
	}

	return Assemble(m.Sender, m.Recipient, date, plaintext, info), nil
}

// Assemble builds a record from already extracted parts.
func Assemble(sender, recipient string, date time.Time, plaintext string, info map[string]any) *CrashRecord {
	return &CrashRecord{
		Sender:    sender,
		Recipient: recipient,
		Date:      date,
		Plaintext: plaintext,
		Info:      info,
		hashID:    HashID(sender, recipient, date),
	}
}

// HashID is the dedup key of a report: only sender, recipient and the
// second-resolution date take part, so a resent mail maps to the same key.
// The date is formatted in its own offset to stay compatible with records
// stored by earlier importers.
func HashID(sender, recipient string, date time.Time) string {
	h := sha256.New()
	h.Write([]byte(sender + recipient))
	h.Write([]byte(date.Format(hashTimeLayout)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashID returns the 64 hex character identity hash.
func (r *CrashRecord) HashID() string {
	return r.hashID
}

// Package returns the application package declared by the report.
func (r *CrashRecord) Package() (string, bool) {
	pkg, ok := r.Info["package"].(string)
	return pkg, ok
}

// Document is the on-disk form of a record.
type Document struct {
	To                   string         `json:"to"`
	Timestamp            int64          `json:"timestamp"`
	Plaintext            string         `json:"plaintext"`
	NewpipeExceptionInfo map[string]any `json:"newpipe-exception-info"`
}

// Document returns the stored form. The sender only feeds the hash and is not kept.
func (r *CrashRecord) Document() Document {
	return Document{
		To:                   r.Recipient,
		Timestamp:            r.Date.Unix(),
		Plaintext:            r.Plaintext,
		NewpipeExceptionInfo: r.Info,
	}
}

// MarshalDocument renders the record as indented JSON.
func (r *CrashRecord) MarshalDocument() ([]byte, error) {
	return json.MarshalIndent(r.Document(), "", "  ")
}
