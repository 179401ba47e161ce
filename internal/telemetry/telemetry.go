// Package telemetry wires traces, metrics and logs to OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	otelmetric "go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	DefaultServiceName = "crashreportimporter"
	serviceVersion     = "0.0.1"
)

// Config selects the exporters. Endpoint receives traces and logs over
// OTLP/HTTP, MetricsEndpoint receives metrics over OTLP/gRPC. Stdout sends
// logs to standard output in addition.
type Config struct {
	ServiceName     string
	Endpoint        string
	MetricsEndpoint string
	Insecure        bool
	Headers         map[string]string
	Stdout          bool
}

func (c Config) Enabled() bool {
	return c.Endpoint != "" || c.MetricsEndpoint != "" || c.Stdout
}

// Providers holds the installed providers. Without exporters they are
// no-op implementations.
type Providers struct {
	TracerProvider oteltrace.TracerProvider
	MeterProvider  otelmetric.MeterProvider
	LoggerProvider otellog.LoggerProvider

	logsEnabled   bool
	shutdownFuncs []func(context.Context) error
}

// Shutdown flushes and stops every exporter. The errors of all calls are
// joined and each cleanup runs once.
func (p *Providers) Shutdown(ctx context.Context) error {
	var err error
	for _, fn := range p.shutdownFuncs {
		err = errors.Join(err, fn(ctx))
	}
	p.shutdownFuncs = nil
	return err
}

// Logger returns a logger exporting through OpenTelemetry when log export
// is enabled, and fallback otherwise.
func (p *Providers) Logger(fallback *slog.Logger) *slog.Logger {
	if !p.logsEnabled {
		return fallback
	}
	return otelslog.NewLogger(DefaultServiceName, otelslog.WithLoggerProvider(p.LoggerProvider))
}

func noopProviders() *Providers {
	return &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
		LoggerProvider: lognoop.NewLoggerProvider(),
	}
}

// Setup bootstraps the OpenTelemetry pipeline and registers the providers
// globally. Call Shutdown on the result for proper cleanup.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	p := noopProviders()
	if !cfg.Enabled() {
		return p, nil
	}

	handleErr := func(inErr error) error {
		return errors.Join(inErr, p.Shutdown(ctx))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		))
	if err != nil {
		return nil, handleErr(err)
	}

	if cfg.Endpoint != "" {
		tp, err := newTraceProvider(ctx, cfg, res)
		if err != nil {
			return nil, handleErr(err)
		}
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
		p.TracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEndpoint != "" {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			return nil, handleErr(err)
		}
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
		p.MeterProvider = mp
		otel.SetMeterProvider(mp)
	}

	if cfg.Endpoint != "" || cfg.Stdout {
		lp, err := newLoggerProvider(ctx, cfg, res)
		if err != nil {
			return nil, handleErr(err)
		}
		p.shutdownFuncs = append(p.shutdownFuncs, lp.Shutdown)
		p.LoggerProvider = lp
		p.logsEnabled = true
		global.SetLoggerProvider(lp)
	}

	return p, nil
}

func newTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithIDGenerator(xray.NewIDGenerator()),
		trace.WithBatcher(exporter, trace.WithBatchTimeout(time.Second)),
	), nil
}

func preferDeltaTemporality(kind metric.InstrumentKind) metricdata.Temporality {
	switch kind {
	case metric.InstrumentKindCounter,
		metric.InstrumentKindObservableCounter,
		metric.InstrumentKindHistogram:
		return metricdata.DeltaTemporality
	default:
		return metricdata.CumulativeTemporality
	}
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.MetricsEndpoint),
		otlpmetricgrpc.WithHeaders(cfg.Headers),
		otlpmetricgrpc.WithCompressor(gzip.Name),
		otlpmetricgrpc.WithTemporalitySelector(preferDeltaTemporality),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(15*time.Second))),
	), nil
}

func newLoggerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*log.LoggerProvider, error) {
	opts := []log.LoggerProviderOption{log.WithResource(res)}

	if cfg.Endpoint != "" {
		httpOpts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(cfg.Endpoint),
			otlploghttp.WithHeaders(cfg.Headers),
			otlploghttp.WithCompression(otlploghttp.GzipCompression),
		}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlploghttp.WithInsecure())
		}
		exporter, err := otlploghttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, log.WithProcessor(log.NewBatchProcessor(exporter)))
	}

	if cfg.Stdout {
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(os.Stdout))
		if err != nil {
			return nil, err
		}
		opts = append(opts, log.WithProcessor(log.NewSimpleProcessor(exporter)))
	}

	return log.NewLoggerProvider(opts...), nil
}
