// Package rawmail reads inbound crash report mails and recovers their text body.
package rawmail

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

var (
	// ErrNoBodyFound is returned when a mail carries no text/plain or text/html part.
	ErrNoBodyFound = errors.New("no text/plain or text/html part found")
	// ErrDecode is returned when no known charset decodes the body.
	ErrDecode = errors.New("could not decode message payload")
)

// Mail is an inbound message. It is never modified after Read returns.
type Mail struct {
	Sender    string
	Recipient string
	Header    gomail.Header

	parts []part
}

type part struct {
	contentType string
	body        []byte
}

// Read parses an RFC 822 message. Parts are buffered so the mail can be
// inspected more than once.
func Read(r io.Reader) (*Mail, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, errors.Wrap(err, "read message")
	}

	m := &Mail{
		Sender:    entity.Header.Get("From"),
		Recipient: entity.Header.Get("To"),
		Header:    gomail.Header{Header: entity.Header},
	}
	if err := m.collect(entity); err != nil {
		return nil, err
	}
	return m, nil
}

// collect walks the entity tree depth-first in document order.
func (m *Mail) collect(entity *message.Entity) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case err != nil && (message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)):
				// charset is decided later from the raw bytes
			case err != nil && strings.Contains(err.Error(), "multipart: NextPart: EOF"):
				return nil
			case err != nil:
				return errors.Wrap(err, "read multipart")
			}
			if err := m.collect(p); err != nil {
				return err
			}
		}
	}

	contentType, _, err := entity.Header.ContentType()
	if err != nil {
		contentType = "text/plain"
	}
	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return errors.Wrap(err, "read part body")
	}
	m.parts = append(m.parts, part{contentType: strings.ToLower(contentType), body: body})
	return nil
}

// TextPart returns the raw bytes of the first text/plain or text/html part.
func (m *Mail) TextPart() ([]byte, error) {
	for _, p := range m.parts {
		if p.contentType == "text/plain" || p.contentType == "text/html" {
			return bytes.Clone(p.body), nil
		}
	}
	return nil, ErrNoBodyFound
}

// ExtractBody locates the text part, decodes it and sanitizes the result.
func ExtractBody(m *Mail) (string, error) {
	raw, err := m.TextPart()
	if err != nil {
		return "", err
	}
	decoded, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return Sanitize(decoded)
}
