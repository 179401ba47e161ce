// Package reporter sends failures of the importer itself to its own
// error-tracking project.
package reporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/teamnewpipe/crashreportimporter/internal/sentry"
)

type Option func(*Reporter)

// Poster delivers one event. storage.RemoteSink implements it.
type Poster interface {
	Post(ctx context.Context, payload *sentry.Payload) error
}

type Service interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

func WithPoster(poster Poster) Option {
	return func(r *Reporter) {
		r.poster = poster
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// Reporter is disabled, and Report a no-op, until a Poster is set.
type Reporter struct {
	poster Poster
	logger *slog.Logger
	now    func() time.Time
}

func New(opts ...Option) *Reporter {
	r := &Reporter{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) Enabled() bool {
	return r.poster != nil
}

// Report never fails: a report that cannot be sent is only logged.
func (r *Reporter) Report(ctx context.Context, err error, tags map[string]string) {
	if r.poster == nil || err == nil {
		return
	}
	event := sentry.NewEvent(err, tags, r.now())
	if postErr := r.poster.Post(ctx, event); postErr != nil {
		r.logger.Warn("could not report importer error", "error", postErr, "reported", err.Error())
	}
}
