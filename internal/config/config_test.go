package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateEnvMissing(t *testing.T) {
	t.Setenv("NEWPIPE_DSN", "")
	t.Setenv("OWN_DSN", "")
	t.Setenv(envS3Key, "")
	t.Setenv(envS3Secret, "")

	cfg := Config{
		Storage:      Storage{S3: &S3{Bucket: "crashes"}},
		Destinations: []Destination{{Name: "newpipe", Package: "org.schabi.newpipe", DSNEnv: "NEWPIPE_DSN"}},
		SelfReport:   SelfReport{DSNEnv: "OWN_DSN"},
	}

	err := ValidateEnv(cfg)
	if err == nil {
		t.Fatalf("expected error for missing environment variables")
	}
	for _, name := range []string{"NEWPIPE_DSN", "OWN_DSN", envS3Key, envS3Secret} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s to be reported, got: %v", name, err)
		}
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "not: [valid_yaml")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
}

func TestValidateEmpty(t *testing.T) {
	path := writeTempFile(t, `
destinations: []
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for config without storage")
	}
}

func TestValidateFieldErrors(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"destination without package": {
			yaml: `
destinations:
  - name: newpipe
    dsn_env: NEWPIPE_DSN
`,
			want: "destinations[0].package",
		},
		"s3 without bucket": {
			yaml: `
storage:
  s3:
    region: eu-central-1
`,
			want: "storage.s3.bucket",
		},
		"bad relay": {
			yaml: `
storage:
  directory: mails
relays:
  - "not a host"
`,
			want: "relays[0]",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTempFile(t, tc.yaml))
			if err != nil {
				t.Fatalf("expected config to load, got error: %v", err)
			}
			err = Validate(cfg)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidateDuplicatePackage(t *testing.T) {
	path := writeTempFile(t, `
destinations:
  - name: newpipe
    package: org.schabi.newpipe
    dsn_env: NEWPIPE_DSN
  - name: again
    package: org.schabi.newpipe
    dsn_env: OTHER_DSN
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "both accept package") {
		t.Fatalf("expected duplicate package error, got: %v", err)
	}
}

func TestHappyPath(t *testing.T) {
	t.Setenv("NEWPIPE_DSN", "https://key@glitchtip.example.org/1")
	t.Setenv("NIGHTLY_DSN", "https://key@glitchtip.example.org/2")
	t.Setenv("OWN_DSN", "https://key@glitchtip.example.org/3")

	path := writeTempFile(t, `
storage:
  directory: mails
destinations:
  - name: newpipe
    package: org.schabi.newpipe
    dsn_env: NEWPIPE_DSN
  - name: nightly
    package: org.schabi.newpipe.nightly
    dsn_env: NIGHTLY_DSN
self_report:
  dsn_env: OWN_DSN
relays:
  - mail.example.org
reject_future: false
telemetry:
  stdout: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected config to validate, got error: %v", err)
	}
	if err := ValidateEnv(cfg); err != nil {
		t.Fatalf("expected env to validate, got error: %v", err)
	}

	if cfg.RejectFutureEnabled() {
		t.Fatalf("expected reject_future to be disabled")
	}
	if got := cfg.Destinations[1].DSN(); got != "https://key@glitchtip.example.org/2" {
		t.Fatalf("unexpected dsn: %q", got)
	}
	if got := cfg.SelfReport.DSN(); got != "https://key@glitchtip.example.org/3" {
		t.Fatalf("unexpected self report dsn: %q", got)
	}

	summary := Summary(cfg)
	for _, want := range []string{"storage directory: mails", "destinations: 2", "nightly: org.schabi.newpipe.nightly", "telemetry: enabled"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("expected summary to contain %q, got:\n%s", want, summary)
		}
	}
}

func TestRejectFutureDefault(t *testing.T) {
	if !(Config{}).RejectFutureEnabled() {
		t.Fatalf("expected reject_future to default to true")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
