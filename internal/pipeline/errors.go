package pipeline

import (
	"errors"

	"github.com/teamnewpipe/crashreportimporter/internal/payload"
	"github.com/teamnewpipe/crashreportimporter/internal/rawmail"
	"github.com/teamnewpipe/crashreportimporter/internal/record"
	"github.com/teamnewpipe/crashreportimporter/internal/sentry"
	"github.com/teamnewpipe/crashreportimporter/internal/stacktrace"
	"github.com/teamnewpipe/crashreportimporter/internal/storage"
)

var (
	ErrUnknownPackage  = errors.New("no destination accepts package")
	ErrFutureTimestamp = errors.New("event date lies in the future")
)

// Reason classifies err for metrics and log attributes.
func Reason(err error) string {
	var (
		frameErr    *stacktrace.FrameParseError
		rejectedErr *storage.RemoteRejectedError
		mismatchErr *sentry.PackageMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, rawmail.ErrNoBodyFound):
		return "no_body"
	case errors.Is(err, rawmail.ErrDecode):
		return "decode"
	case errors.Is(err, payload.ErrNoJSONFound):
		return "no_json"
	case errors.Is(err, payload.ErrInvalidJSON):
		return "invalid_json"
	case errors.As(err, &frameErr):
		return "frame_parse"
	case errors.Is(err, record.ErrDateUnresolved):
		return "date_unresolved"
	case errors.Is(err, ErrFutureTimestamp):
		return "future_timestamp"
	case errors.Is(err, ErrUnknownPackage):
		return "unknown_package"
	case errors.Is(err, storage.ErrAlreadyStored):
		return "already_stored"
	case errors.As(err, &rejectedErr):
		return "remote_rejected"
	case errors.As(err, &mismatchErr):
		return "package_mismatch"
	default:
		return "other"
	}
}
