// Package storage delivers crash records to their destinations: a sharded
// document store and remote error-tracking projects.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamnewpipe/crashreportimporter/internal/record"
	"github.com/teamnewpipe/crashreportimporter/internal/stacktrace"
)

// ErrAlreadyStored is returned when a sink holds the record already. The
// stored copy is left untouched.
var ErrAlreadyStored = errors.New("already stored")

// RemoteRejectedError carries a non-success response of a remote sink.
type RemoteRejectedError struct {
	Status int
	Body   string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected event with status %d: %s", e.Status, e.Body)
}

// Delivery is what a sink receives for one message.
type Delivery struct {
	Record    *record.CrashRecord
	Exception *stacktrace.ParsedException
}

//go:generate mockgen -destination=../../pkg/mock/mock_sink.go -package=mock github.com/teamnewpipe/crashreportimporter/internal/storage Sink

// Sink is a storage destination.
type Sink interface {
	Name() string
	Save(ctx context.Context, d Delivery) error
}

// PackageSink is a sink that only accepts reports of one application package.
type PackageSink interface {
	Sink
	Package() string
}
