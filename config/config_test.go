package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
tests:
  - name: Test
    target_url: https://example.com
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.RequestTimeout.Duration() != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout.Duration())
	}
	if cfg.PollInterval.Duration() != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval.Duration())
	}
	if cfg.WaitTimeout.Duration() != 5*time.Minute {
		t.Errorf("WaitTimeout = %v, want 5m", cfg.WaitTimeout.Duration())
	}
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if len(cfg.Tests) != 1 {
		t.Errorf("len(Tests) = %d, want 1", len(cfg.Tests))
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
api_key: abc123
base_url: http://localhost:8089/api/v1
request_timeout: 10s
poll_interval: 2s
wait_timeout: 10m
max_concurrency: 8
history: ./runs.db
listen: ":9090"

tests:
  - name: Orders
    target_url: https://api.example.com/orders
    method: post
    duration: 2m
    concurrent_users: 50
    ramp_up_time: 15s
    headers:
      Authorization: Bearer token123
    body: '{"sku":"A1"}'
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.APIKey != "abc123" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BaseURL != "http://localhost:8089/api/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.PollInterval.Duration() != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval.Duration())
	}
	if cfg.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.MaxConcurrency)
	}
	if cfg.History != "./runs.db" || cfg.Listen != ":9090" {
		t.Errorf("History = %q, Listen = %q", cfg.History, cfg.Listen)
	}

	tc := cfg.Tests[0]
	if tc.Method != "POST" {
		t.Errorf("Method = %q, want POST (upper-cased)", tc.Method)
	}
	if tc.Duration.Duration() != 2*time.Minute {
		t.Errorf("Duration = %v, want 2m", tc.Duration.Duration())
	}
	if tc.ConcurrentUsers != 50 {
		t.Errorf("ConcurrentUsers = %d, want 50", tc.ConcurrentUsers)
	}
	if tc.RampUpTime.Duration() != 15*time.Second {
		t.Errorf("RampUpTime = %v, want 15s", tc.RampUpTime.Duration())
	}
	if tc.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("Headers[Authorization] = %q", tc.Headers["Authorization"])
	}
	if tc.Body != `{"sku":"A1"}` {
		t.Errorf("Body = %q", tc.Body)
	}
}

func TestParse_MatrixConfig(t *testing.T) {
	yaml := `
matrices:
  - name: Regions
    url_template: "https://{{.region}}.example.com/{{.path}}"
    dimensions:
      region: [us, eu]
      path: [health, ready]
    duration: 30s
    concurrent_users: 5
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	m := cfg.Matrices[0]
	if m.Name != "Regions" {
		t.Errorf("Name = %q", m.Name)
	}
	if len(m.Dimensions) != 2 {
		t.Errorf("len(Dimensions) = %d, want 2", len(m.Dimensions))
	}
	if m.Duration.Duration() != 30*time.Second || m.ConcurrentUsers != 5 {
		t.Errorf("shared settings not parsed: %+v", m.TestSettings)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_DEVSLY_KEY", "key-from-env")
	t.Setenv("TEST_API_HOST", "api.test.com")
	t.Setenv("TEST_API_TOKEN", "secret123")

	yaml := `
api_key: ${TEST_DEVSLY_KEY}
base_url: ${TEST_BASE_URL:-http://localhost:8089/api/v1}
tests:
  - name: Test
    target_url: https://${TEST_API_HOST}/health
    headers:
      Authorization: "Bearer ${TEST_API_TOKEN}"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q, want key-from-env", cfg.APIKey)
	}
	if cfg.BaseURL != "http://localhost:8089/api/v1" {
		t.Errorf("BaseURL = %q, want default from expansion", cfg.BaseURL)
	}
	tc := cfg.Tests[0]
	if tc.TargetURL != "https://api.test.com/health" {
		t.Errorf("TargetURL = %q, want https://api.test.com/health", tc.TargetURL)
	}
	if tc.Headers["Authorization"] != "Bearer secret123" {
		t.Errorf("Headers[Authorization] = %q, want 'Bearer secret123'", tc.Headers["Authorization"])
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_VAR is expected to not exist in the environment
	yaml := `
tests:
  - name: Test
    target_url: https://${MISSING_VAR}/health
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_VAR") {
		t.Errorf("error should mention MISSING_VAR: %v", err)
	}
}

func TestParse_EnvVarInMatrixTemplate(t *testing.T) {
	t.Setenv("TEST_DOMAIN", "example.com")

	yaml := `
matrices:
  - name: Test
    url_template: "https://{{.env}}.${TEST_DOMAIN}/health"
    dimensions:
      env: [prod]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Matrices[0].URLTemplate != "https://{{.env}}.example.com/health" {
		t.Errorf("URLTemplate = %q", cfg.Matrices[0].URLTemplate)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "nothing defined",
			yaml:        `poll_interval: 5s`,
			wantErrLike: "at least one test or matrix",
		},
		{
			name: "test missing name",
			yaml: `
tests:
  - target_url: https://example.com
`,
			wantErrLike: "tests[0]: name is required",
		},
		{
			name: "test missing url",
			yaml: `
tests:
  - name: A
`,
			wantErrLike: "tests[0] (A): target_url is required",
		},
		{
			name: "test url without scheme",
			yaml: `
tests:
  - name: A
    target_url: example.com
`,
			wantErrLike: "scheme",
		},
		{
			name: "test url ftp",
			yaml: `
tests:
  - name: A
    target_url: ftp://example.com
`,
			wantErrLike: "http or https",
		},
		{
			name: "duplicate test names",
			yaml: `
tests:
  - name: A
    target_url: https://a.example.com
  - name: A
    target_url: https://b.example.com
`,
			wantErrLike: "duplicate test name",
		},
		{
			name: "bad method",
			yaml: `
tests:
  - name: A
    target_url: https://example.com
    method: FETCH
`,
			wantErrLike: "unsupported method",
		},
		{
			name: "sub-second duration",
			yaml: `
tests:
  - name: A
    target_url: https://example.com
    duration: 500ms
`,
			wantErrLike: "duration must be at least 1s",
		},
		{
			name: "negative users",
			yaml: `
tests:
  - name: A
    target_url: https://example.com
    concurrent_users: -1
`,
			wantErrLike: "concurrent_users cannot be negative",
		},
		{
			name: "negative ramp-up",
			yaml: `
tests:
  - name: A
    target_url: https://example.com
    ramp_up_time: -5s
`,
			wantErrLike: "ramp_up_time cannot be negative",
		},
		{
			name: "poll interval too small",
			yaml: `
poll_interval: 100ms
tests:
  - name: A
    target_url: https://example.com
`,
			wantErrLike: "poll_interval must be at least 1s",
		},
		{
			name: "wait timeout below poll interval",
			yaml: `
poll_interval: 10s
wait_timeout: 5s
tests:
  - name: A
    target_url: https://example.com
`,
			wantErrLike: "wait_timeout",
		},
		{
			name: "bad base url",
			yaml: `
base_url: devsly.io
tests:
  - name: A
    target_url: https://example.com
`,
			wantErrLike: "base_url",
		},
		{
			name: "matrix missing template",
			yaml: `
matrices:
  - name: M
    dimensions:
      env: [prod]
`,
			wantErrLike: "url_template is required",
		},
		{
			name: "matrix invalid template",
			yaml: `
matrices:
  - name: M
    url_template: "https://{{.env"
    dimensions:
      env: [prod]
`,
			wantErrLike: "invalid url_template",
		},
		{
			name: "matrix without dimensions",
			yaml: `
matrices:
  - name: M
    url_template: "https://example.com"
`,
			wantErrLike: "at least one dimension",
		},
		{
			name: "matrix empty dimension",
			yaml: `
matrices:
  - name: M
    url_template: "https://{{.env}}.example.com"
    dimensions:
      env: []
`,
			wantErrLike: "has no values",
		},
		{
			name: "matrix duplicate dimension value",
			yaml: `
matrices:
  - name: M
    url_template: "https://{{.env}}.example.com"
    dimensions:
      env: [prod, prod]
`,
			wantErrLike: "duplicate value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("tests: [unclosed"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("error = %v", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
poll_interval: soon
tests:
  - name: A
    target_url: https://example.com
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devsly.yaml")
	content := `
tests:
  - name: A
    target_url: https://example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tests[0].Name != "A" {
		t.Errorf("Tests[0].Name = %q", cfg.Tests[0].Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Load() error = %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}
