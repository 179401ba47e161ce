// Package sentry renders crash records in the store API event format
// understood by Sentry and GlitchTip.
package sentry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/teamnewpipe/crashreportimporter/internal/record"
	"github.com/teamnewpipe/crashreportimporter/internal/stacktrace"
)

const (
	ClientName    = "newpipe.crashreportimporter"
	ClientVersion = "0.0.1"
)

var (
	extraKeys = []string{"user_comment", "request", "user_action"}
	tagKeys   = []string{"os", "service", "content_language"}
)

// PackageMismatchError is returned when a report names another application
// than the destination accepts.
type PackageMismatchError struct {
	Got  string
	Want string
}

func (e *PackageMismatchError) Error() string {
	return fmt.Sprintf("package %q not allowed, destination accepts %q", e.Got, e.Want)
}

type Frame struct {
	Filename string `json:"filename"`
	Function string `json:"function"`
	Package  string `json:"package"`
	Lineno   *int   `json:"lineno"`
	InApp    bool   `json:"in_app"`
}

type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

type Exception struct {
	Type       string     `json:"type"`
	Value      string     `json:"value"`
	Stacktrace Stacktrace `json:"stacktrace"`
}

type ExceptionList struct {
	Values []Exception `json:"values"`
}

type SDK struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Payload is a single store API event.
type Payload struct {
	EventID   string         `json:"event_id"`
	Timestamp float64        `json:"timestamp"`
	Platform  string         `json:"platform"`
	Message   string         `json:"message"`
	Exception ExceptionList  `json:"exception"`
	Extra     map[string]any `json:"extra"`
	Tags      map[string]any `json:"tags"`
	Release   *string        `json:"release"`
	SDK       SDK            `json:"sdk"`
	Level     string         `json:"level"`
}

// EventID narrows the 64 hex character identity hash to the 32 hex
// characters the event format allows.
func EventID(hashID string) string {
	sum := md5.Sum([]byte(hashID))
	return hex.EncodeToString(sum[:])
}

// Build renders rec and its parsed exception for a destination accepting
// pkg. The package check happens first so a mismatch never costs any I/O.
func Build(rec *record.CrashRecord, exc *stacktrace.ParsedException, pkg string) (*Payload, error) {
	reported, hasPackage := rec.Package()
	if hasPackage && reported != pkg {
		return nil, &PackageMismatchError{Got: reported, Want: pkg}
	}

	frames := make([]Frame, 0, len(exc.Frames))
	for _, f := range exc.Frames {
		frames = append(frames, Frame{
			Filename: f.Filename,
			Function: f.Function,
			Package:  f.Package,
			Lineno:   f.Lineno,
			InApp:    true,
		})
	}

	p := &Payload{
		EventID:   EventID(rec.HashID()),
		Timestamp: float64(rec.Date.UnixMicro()) / 1e6,
		Platform:  "java",
		Message:   exc.Message,
		Exception: ExceptionList{Values: []Exception{{
			Type:       exc.Type,
			Value:      exc.Value,
			Stacktrace: Stacktrace{Frames: frames},
		}}},
		Extra: nullFields(extraKeys),
		Tags:  nullFields(tagKeys),
		SDK:   SDK{Name: ClientName, Version: ClientVersion},
		Level: "error",
	}

	if v, ok := rec.Info["version"]; ok && v != nil {
		release := fmt.Sprint(v)
		p.Release = &release
	}
	copyPresent(p.Extra, rec.Info, extraKeys)
	copyPresent(p.Tags, rec.Info, tagKeys)
	if hasPackage {
		p.Tags["package"] = reported
	}
	return p, nil
}

func nullFields(keys []string) map[string]any {
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		m[k] = nil
	}
	return m
}

func copyPresent(dst, src map[string]any, keys []string) {
	for _, k := range keys {
		if v, ok := src[k]; ok {
			dst[k] = v
		}
	}
}
