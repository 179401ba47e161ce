package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teamnewpipe/crashreportimporter/internal/config"
	"github.com/teamnewpipe/crashreportimporter/internal/pipeline"
	"github.com/teamnewpipe/crashreportimporter/internal/reporter"
	"github.com/teamnewpipe/crashreportimporter/internal/storage"
	"github.com/teamnewpipe/crashreportimporter/internal/telemetry"
)

const configEnvVar = "CRASHREPORT_CONFIG"
const defaultEnvFile = ".env"

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to YAML config file (or set CRASHREPORT_CONFIG)")
	cmd.Flags().Bool("verbose", false, "Enable verbose logging")
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = os.Getenv(configEnvVar)
	}
	if strings.TrimSpace(cfgPath) == "" {
		return "", errors.New("config path is required via --config or CRASHREPORT_CONFIG")
	}
	return cfgPath, nil
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}

// loadConfig resolves, loads and validates the configuration. The
// environment is only checked when the command needs secrets.
func loadConfig(cmd *cobra.Command, requireEnv bool) (config.Config, error) {
	cfgPath, err := resolveConfigPath(cmd)
	if err != nil {
		return config.Config{}, err
	}

	if err := loadEnvFile(); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}

	if requireEnv {
		if err := config.ValidateEnv(cfg); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func telemetryConfig(cfg config.Config) telemetry.Config {
	return telemetry.Config{
		ServiceName:     cfg.Telemetry.ServiceName,
		Endpoint:        cfg.Telemetry.Endpoint,
		MetricsEndpoint: cfg.Telemetry.MetricsEndpoint,
		Insecure:        cfg.Telemetry.Insecure,
		Headers:         cfg.Telemetry.Headers,
		Stdout:          cfg.Telemetry.Stdout,
	}
}

// buildSinks creates the archive sinks first, then one remote sink per
// destination.
func buildSinks(cfg config.Config, logger *slog.Logger) ([]storage.Sink, error) {
	var sinks []storage.Sink

	if cfg.Storage.Directory != "" {
		sinks = append(sinks, storage.NewFileSystemSink("directory",
			storage.OSFileManager{Root: cfg.Storage.Directory},
			storage.WithFileSystemLogger(logger)))
	}

	if s3cfg := cfg.Storage.S3; s3cfg != nil {
		key, secret := config.S3Credentials()
		files, err := storage.NewS3FileManager(storage.S3Options{
			Endpoint:  s3cfg.Endpoint,
			Region:    s3cfg.Region,
			Bucket:    s3cfg.Bucket,
			Prefix:    s3cfg.Prefix,
			AccessKey: key,
			SecretKey: secret,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, storage.NewFileSystemSink("s3", files, storage.WithFileSystemLogger(logger)))
	}

	for _, dest := range cfg.Destinations {
		sink, err := storage.NewRemoteSink(dest.Name, dest.DSN(), dest.Package)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func buildReporter(cfg config.Config, logger *slog.Logger) (*reporter.Reporter, error) {
	opts := []reporter.Option{reporter.WithLogger(logger)}
	if dsn := cfg.SelfReport.DSN(); dsn != "" {
		sink, err := storage.NewRemoteSink("self-report", dsn, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, reporter.WithPoster(sink))
	}
	return reporter.New(opts...), nil
}

type app struct {
	logger    *slog.Logger
	pipeline  *pipeline.Pipeline
	providers *telemetry.Providers
}

// newApp wires the full pipeline for cfg. Call close when done to flush
// telemetry.
func newApp(ctx context.Context, cmd *cobra.Command, cfg config.Config) (*app, error) {
	providers, err := telemetry.Setup(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, err
	}
	logger := providers.Logger(newLogger(cmd))

	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(ctx))
	}

	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(ctx))
	}

	rep, err := buildReporter(cfg, logger)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(ctx))
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithSinks(sinks...),
		pipeline.WithRelays(cfg.Relays),
		pipeline.WithReporter(rep),
		pipeline.WithTelemetry(providers.TracerProvider, metrics),
		pipeline.WithRejectFuture(cfg.RejectFutureEnabled()),
	)
	return &app{logger: logger, pipeline: p, providers: providers}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}
}
