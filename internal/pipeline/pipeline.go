// Package pipeline turns one inbound mail into a crash record and hands it
// to every matching sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/teamnewpipe/crashreportimporter/internal/rawmail"
	"github.com/teamnewpipe/crashreportimporter/internal/record"
	"github.com/teamnewpipe/crashreportimporter/internal/reporter"
	"github.com/teamnewpipe/crashreportimporter/internal/stacktrace"
	"github.com/teamnewpipe/crashreportimporter/internal/storage"
	"github.com/teamnewpipe/crashreportimporter/internal/telemetry"
)

const tracerName = "github.com/teamnewpipe/crashreportimporter/internal/pipeline"

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithSinks sets the destinations. Sinks implementing storage.PackageSink
// only receive reports of their package; all others receive every record.
func WithSinks(sinks ...storage.Sink) Option {
	return func(p *Pipeline) {
		p.sinks = sinks
	}
}

// WithRelays overrides the relay hosts trusted for Received header dates.
func WithRelays(relays []string) Option {
	return func(p *Pipeline) {
		p.relays = relays
	}
}

func WithReporter(r reporter.Service) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

func WithTelemetry(tp trace.TracerProvider, metrics *telemetry.Metrics) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithRejectFuture controls whether records dated after now are dropped.
// It is on by default.
func WithRejectFuture(reject bool) Option {
	return func(p *Pipeline) {
		p.rejectFuture = reject
	}
}

type Pipeline struct {
	logger       *slog.Logger
	sinks        []storage.Sink
	relays       []string
	reporter     reporter.Service
	tracer       trace.Tracer
	metrics      *telemetry.Metrics
	now          func() time.Time
	rejectFuture bool
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:       slog.Default(),
		reporter:     reporter.New(),
		tracer:       tracenoop.NewTracerProvider().Tracer(tracerName),
		metrics:      telemetry.NoopMetrics(),
		now:          time.Now,
		rejectFuture: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SinkResult is the outcome of one delivery attempt.
type SinkResult struct {
	Sink string
	Err  error
}

// Result describes what happened to one message. Err is set when no record
// could be built; nothing was delivered then.
type Result struct {
	Record     *record.CrashRecord
	Err        error
	RoutingErr error
	Deliveries []SinkResult
}

// Failed reports whether anything other than an already stored record went
// wrong.
func (r Result) Failed() bool {
	if r.Err != nil || r.RoutingErr != nil {
		return true
	}
	for _, d := range r.Deliveries {
		if d.Err != nil && !errors.Is(d.Err, storage.ErrAlreadyStored) {
			return true
		}
	}
	return false
}

// Handle processes one raw mail. It never returns an error: failures are
// logged, counted, reported and returned in the Result.
func (p *Pipeline) Handle(ctx context.Context, r io.Reader) Result {
	ctx, span := p.tracer.Start(ctx, "handle")
	defer span.End()
	p.metrics.Received(ctx)

	delivery, err := p.Parse(ctx, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.metrics.Rejected(ctx, Reason(err))
		p.logger.Error("could not process crash report", "error", err, "reason", Reason(err))
		p.reporter.Report(ctx, err, map[string]string{"stage": "parse", "reason": Reason(err)})
		return Result{Err: err}
	}

	rec := delivery.Record
	logger := p.logger.With("hash", rec.HashID(), "date", rec.Date)
	logger.Info("handling crash report")

	res := Result{Record: rec}
	sinks, routingErr := p.route(rec)
	if routingErr != nil {
		res.RoutingErr = routingErr
		p.metrics.Rejected(ctx, Reason(routingErr))
		logger.Error("no destination for crash report", "error", routingErr)
		p.reporter.Report(ctx, routingErr, map[string]string{"stage": "route", "hash": rec.HashID()})
	}

	res.Deliveries = p.deliver(ctx, logger, sinks, delivery)
	return res
}

// Parse builds the record and its parsed stack trace without delivering
// anything.
func (p *Pipeline) Parse(ctx context.Context, r io.Reader) (storage.Delivery, error) {
	_, span := p.tracer.Start(ctx, "extract")
	m, err := rawmail.Read(r)
	span.End()
	if err != nil {
		return storage.Delivery{}, err
	}

	_, span = p.tracer.Start(ctx, "record")
	rec, err := record.New(m, record.WithRelays(p.relays))
	span.End()
	if err != nil {
		return storage.Delivery{}, err
	}

	if p.rejectFuture && rec.Date.After(p.now()) {
		return storage.Delivery{}, fmt.Errorf("%w: %s", ErrFutureTimestamp, rec.Date.Format(time.RFC3339))
	}

	_, span = p.tracer.Start(ctx, "stacktrace")
	exc, err := stacktrace.FromInfo(rec.Info)
	span.End()
	if err != nil {
		return storage.Delivery{}, err
	}

	return storage.Delivery{Record: rec, Exception: exc}, nil
}

// route selects the sinks for rec. Sinks without a package always take
// part; it is an error when package sinks exist but none accepts rec.
func (p *Pipeline) route(rec *record.CrashRecord) ([]storage.Sink, error) {
	pkg, hasPackage := rec.Package()

	var (
		selected    []storage.Sink
		packageSeen bool
		matched     bool
	)
	for _, sink := range p.sinks {
		ps, ok := sink.(storage.PackageSink)
		if !ok {
			selected = append(selected, sink)
			continue
		}
		packageSeen = true
		if hasPackage && ps.Package() == pkg {
			selected = append(selected, sink)
			matched = true
		}
	}

	if packageSeen && !matched {
		if !hasPackage {
			return selected, fmt.Errorf("%w: report names no package", ErrUnknownPackage)
		}
		return selected, fmt.Errorf("%w: %q", ErrUnknownPackage, pkg)
	}
	return selected, nil
}

// deliver runs every sink concurrently. A failing or panicking sink does not
// affect the others.
func (p *Pipeline) deliver(ctx context.Context, logger *slog.Logger, sinks []storage.Sink, d storage.Delivery) []SinkResult {
	results := make([]SinkResult, len(sinks))

	var wg sync.WaitGroup
	for i, sink := range sinks {
		wg.Add(1)
		go func(i int, sink storage.Sink) {
			defer wg.Done()
			name := sink.Name()
			results[i] = SinkResult{Sink: name, Err: p.save(ctx, sink, d)}
		}(i, sink)
	}
	wg.Wait()

	for _, res := range results {
		switch {
		case res.Err == nil:
			p.metrics.Delivered(ctx, res.Sink)
			logger.Info("stored crash report", "sink", res.Sink)
		case errors.Is(res.Err, storage.ErrAlreadyStored):
			p.metrics.DeliveryFailed(ctx, res.Sink, Reason(res.Err))
			logger.Warn("already stored, skipping", "sink", res.Sink)
		default:
			p.metrics.DeliveryFailed(ctx, res.Sink, Reason(res.Err))
			logger.Error("could not store crash report", "sink", res.Sink, "error", res.Err, "reason", Reason(res.Err))
			p.reporter.Report(ctx, res.Err, map[string]string{
				"stage": "deliver",
				"sink":  res.Sink,
				"hash":  d.Record.HashID(),
			})
		}
	}
	return results
}

func (p *Pipeline) save(ctx context.Context, sink storage.Sink, d storage.Delivery) (err error) {
	ctx, span := p.tracer.Start(ctx, "deliver/"+sink.Name())
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
		if err != nil && !errors.Is(err, storage.ErrAlreadyStored) {
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return sink.Save(ctx, d)
}
