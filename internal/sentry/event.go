package sentry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewEvent describes a failure of the importer itself, for reporting to
// its own project. Event ids are random since there is no record to derive
// them from.
func NewEvent(err error, tags map[string]string, now time.Time) *Payload {
	t := make(map[string]any, len(tags))
	for k, v := range tags {
		t[k] = v
	}

	return &Payload{
		EventID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		Timestamp: float64(now.UnixMicro()) / 1e6,
		Platform:  "go",
		Message:   err.Error(),
		Exception: ExceptionList{Values: []Exception{{
			Type:       fmt.Sprintf("%T", err),
			Value:      err.Error(),
			Stacktrace: Stacktrace{Frames: []Frame{}},
		}}},
		Extra: map[string]any{},
		Tags:  t,
		SDK:   SDK{Name: ClientName, Version: ClientVersion},
		Level: "error",
	}
}
