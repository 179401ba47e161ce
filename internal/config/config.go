package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	envS3Key    = "CRASHREPORT_S3_KEY"
	envS3Secret = "CRASHREPORT_S3_SECRET"
)

// Config holds non-secret configuration loaded from YAML. Secrets such as
// DSNs are referenced by environment variable name.
type Config struct {
	Storage      Storage       `yaml:"storage"`
	Destinations []Destination `yaml:"destinations" validate:"dive"`
	SelfReport   SelfReport    `yaml:"self_report"`
	Relays       []string      `yaml:"relays" validate:"dive,hostname_rfc1123"`
	RejectFuture *bool         `yaml:"reject_future"`
	Telemetry    Telemetry     `yaml:"telemetry"`
}

// Storage configures where every record is archived.
type Storage struct {
	Directory string `yaml:"directory"`
	S3        *S3    `yaml:"s3"`
}

type S3 struct {
	Bucket   string `yaml:"bucket" validate:"required"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	Prefix   string `yaml:"prefix"`
}

// Destination is an error-tracking project accepting one application package.
type Destination struct {
	Name    string `yaml:"name" validate:"required"`
	Package string `yaml:"package" validate:"required"`
	DSNEnv  string `yaml:"dsn_env" validate:"required"`
}

// SelfReport names the DSN variable of the project receiving the
// importer's own errors. Reporting is off when empty.
type SelfReport struct {
	DSNEnv string `yaml:"dsn_env"`
}

type Telemetry struct {
	ServiceName     string            `yaml:"service_name"`
	Endpoint        string            `yaml:"endpoint"`
	MetricsEndpoint string            `yaml:"metrics_endpoint"`
	Insecure        bool              `yaml:"insecure"`
	Headers         map[string]string `yaml:"headers"`
	Stdout          bool              `yaml:"stdout"`
}

// Load reads configuration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate performs validation on non-secret config.
func Validate(cfg Config) error {
	if err := newValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			msgs = append(msgs, fmt.Sprintf("%s fails %q", field, fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	if cfg.Storage.Directory == "" && cfg.Storage.S3 == nil && len(cfg.Destinations) == 0 {
		return errors.New("config must define storage or at least one destination")
	}

	names := map[string]bool{}
	packages := map[string]string{}
	for i, dest := range cfg.Destinations {
		if names[dest.Name] {
			return fmt.Errorf("destination %d reuses name %q", i+1, dest.Name)
		}
		names[dest.Name] = true
		if other, ok := packages[dest.Package]; ok {
			return fmt.Errorf("destinations %q and %q both accept package %q", other, dest.Name, dest.Package)
		}
		packages[dest.Package] = dest.Name
	}
	return nil
}

// ValidateEnv ensures the environment variables cfg refers to are set.
func ValidateEnv(cfg Config) error {
	missing := []string{}
	for _, name := range requiredEnvVars(cfg) {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
}

func requiredEnvVars(cfg Config) []string {
	names := []string{}
	for _, dest := range cfg.Destinations {
		names = append(names, dest.DSNEnv)
	}
	if cfg.SelfReport.DSNEnv != "" {
		names = append(names, cfg.SelfReport.DSNEnv)
	}
	if cfg.Storage.S3 != nil {
		names = append(names, envS3Key, envS3Secret)
	}
	return names
}

// DSN returns the destination's DSN from the environment.
func (d Destination) DSN() string {
	return strings.TrimSpace(os.Getenv(d.DSNEnv))
}

// DSN returns the self-report DSN, empty when reporting is off.
func (s SelfReport) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.DSNEnv))
}

// S3Credentials returns the access key pair for S3 storage.
func S3Credentials() (key, secret string) {
	return strings.TrimSpace(os.Getenv(envS3Key)), strings.TrimSpace(os.Getenv(envS3Secret))
}

// RejectFutureEnabled defaults to true.
func (c Config) RejectFutureEnabled() bool {
	return c.RejectFuture == nil || *c.RejectFuture
}

// Summary returns a concise config summary for validation runs.
func Summary(cfg Config) string {
	var b strings.Builder
	b.WriteString("Config summary\n")
	fmt.Fprintf(&b, "- storage directory: %s\n", defaultIfEmpty(cfg.Storage.Directory, "(not set)"))
	if cfg.Storage.S3 != nil {
		fmt.Fprintf(&b, "- storage s3: %s/%s\n", cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix)
	} else {
		b.WriteString("- storage s3: (not set)\n")
	}
	fmt.Fprintf(&b, "- destinations: %d\n", len(cfg.Destinations))
	for _, dest := range cfg.Destinations {
		fmt.Fprintf(&b, "  - %s: %s (dsn from %s)\n", dest.Name, dest.Package, dest.DSNEnv)
	}
	fmt.Fprintf(&b, "- self reporting: %s\n", enabled(cfg.SelfReport.DSNEnv != ""))
	fmt.Fprintf(&b, "- reject future dates: %s\n", enabled(cfg.RejectFutureEnabled()))
	fmt.Fprintf(&b, "- relays: %s\n", defaultIfEmpty(strings.Join(cfg.Relays, ", "), "(default)"))
	fmt.Fprintf(&b, "- telemetry: %s", enabled(cfg.Telemetry.Endpoint != "" || cfg.Telemetry.MetricsEndpoint != "" || cfg.Telemetry.Stdout))
	return b.String()
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
