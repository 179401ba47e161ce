// Package payload finds and parses the diagnostic JSON object embedded in a
// sanitized crash report body.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNoJSONFound is returned when the text holds no {...} span.
	ErrNoJSONFound = errors.New("could not find JSON in given data")
	// ErrInvalidJSON is returned when the span is not a single JSON object.
	ErrInvalidJSON = errors.New("could not parse JSON in given data")
)

// Spans from the first '{' to the last '}', whatever mail clients put around it.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Extract returns the JSON object embedded in text.
func Extract(text string) (map[string]any, error) {
	match := objectPattern.FindString(text)
	if match == "" {
		return nil, ErrNoJSONFound
	}
	return Parse(norm.NFKD.String(match))
}

// Parse decodes a single JSON object, tolerating raw control characters
// inside string literals. Numbers are kept as json.Number.
func Parse(data string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(escapeControlChars(data)))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if out == nil {
		return nil, ErrInvalidJSON
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON)
	}
	return out, nil
}

func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
