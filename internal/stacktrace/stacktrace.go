// Package stacktrace turns the Java stack trace text of a crash report into
// structured exception and frame data.
//
// Only the top-level exception is parsed. "Caused by" sections are not split
// into separate exceptions.
package stacktrace

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Placeholder is used for type, value and module when the message line has
// no "Type: text" form.
const Placeholder = "<none>"

const frameSeparator = "\tat"

var (
	framePattern    = regexp.MustCompile(`(.+)\(([a-zA-Z0-9:.\s]+)\)`)
	locationPattern = regexp.MustCompile(`(Unknown\s+Source|[a-zA-Z]+\.(?:kt|java)+):([0-9]+)`)
)

// Frame is a single call site. Lineno is nil for native frames.
type Frame struct {
	Filename string
	Function string
	Package  string
	Lineno   *int
}

// ParsedException is the top-level exception of a report.
type ParsedException struct {
	Type    string
	Value   string
	Module  string
	Message string
	Frames  []Frame
}

// FrameParseError rejects a whole report; partial traces are never produced.
type FrameParseError struct {
	Segment string
	Reason  string
}

func (e *FrameParseError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("could not parse stack trace: %s", e.Reason)
	}
	return fmt.Sprintf("could not parse frame %q: %s", e.Segment, e.Reason)
}

// FromInfo parses the "exceptions" array of a diagnostic object.
func FromInfo(info map[string]any) (*ParsedException, error) {
	raw, ok := info["exceptions"]
	if !ok {
		return nil, &FrameParseError{Reason: "'exceptions' key missing in JSON body"}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, &FrameParseError{Reason: fmt.Sprintf("'exceptions' is a %T, not an array", raw)}
	}

	var b strings.Builder
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &FrameParseError{Reason: fmt.Sprintf("exceptions[%d] is a %T, not a string", i, item)}
		}
		b.WriteString(s)
	}
	return Parse(b.String())
}

// Parse converts a raw stack trace. Frames keep the order of the input,
// innermost call first.
func Parse(raw string) (*ParsedException, error) {
	raw = strings.NewReplacer("\n", " ", "\r", " ").Replace(raw)
	segments := strings.Split(raw, frameSeparator)

	exc := parseMessage(strings.TrimRightFunc(segments[0], unicode.IsSpace))

	for _, segment := range segments[1:] {
		frame, err := parseFrame(strings.TrimSpace(segment))
		if err != nil {
			return nil, err
		}
		exc.Frames = append(exc.Frames, frame)
	}
	return exc, nil
}

func parseMessage(message string) *ParsedException {
	exc := &ParsedException{
		Type:    Placeholder,
		Value:   Placeholder,
		Module:  Placeholder,
		Message: message,
	}

	qualified, value, found := strings.Cut(message, ":")
	if !found {
		return exc
	}
	// only the text up to the next colon, nested causes stay in Message
	exc.Value, _, _ = strings.Cut(value, ":")

	idx := strings.LastIndex(qualified, ".")
	exc.Type = qualified[idx+1:]
	if idx >= 0 {
		exc.Module = qualified[:idx]
	} else {
		exc.Module = ""
	}
	return exc
}

func parseFrame(segment string) (Frame, error) {
	match := framePattern.FindStringSubmatch(segment)
	if match == nil {
		return Frame{}, &FrameParseError{Segment: segment, Reason: "no call site found"}
	}
	callsite, location := match[1], match[2]

	frame := Frame{Filename: location}
	if idx := strings.LastIndex(callsite, "."); idx >= 0 {
		frame.Function = callsite[idx+1:]
		frame.Package = callsite[:idx]
	} else {
		frame.Function = callsite
	}

	if !strings.Contains(location, ":") {
		// native or builtin method, no line information
		return frame, nil
	}

	loc := locationPattern.FindStringSubmatch(location)
	if loc == nil {
		return Frame{}, &FrameParseError{Segment: segment, Reason: "could not find filename and line number"}
	}
	lineno, err := strconv.Atoi(loc[2])
	if err != nil {
		return Frame{}, &FrameParseError{Segment: segment, Reason: err.Error()}
	}
	frame.Filename = loc[1]
	frame.Lineno = &lineno
	return frame, nil
}
