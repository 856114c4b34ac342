package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880
proxy_protocol = true

[upstream]
timeout_seconds = 60
idle_connections = 50
tls_handshake_timeout_seconds = 5
chunk_size_bytes = 4096

[log]
level = "debug"
format = "text"

[tracing]
enabled = true
endpoint = "otel-collector:4317"
sampling_rate = 0.25
service_name = "edge-proxy"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if !cfg.Server.ProxyProtocol {
		t.Error("Server.ProxyProtocol = false, want true")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Upstream.TLSHandshakeTimeoutSeconds != 5 {
		t.Errorf("Upstream.TLSHandshakeTimeoutSeconds = %d, want %d", cfg.Upstream.TLSHandshakeTimeoutSeconds, 5)
	}
	if cfg.Upstream.ChunkSizeBytes != 4096 {
		t.Errorf("Upstream.ChunkSizeBytes = %d, want %d", cfg.Upstream.ChunkSizeBytes, 4096)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "otel-collector:4317" {
		t.Errorf("Tracing = %+v, want enabled with endpoint", cfg.Tracing)
	}
	if *cfg.Tracing.SamplingRate != 0.25 {
		t.Errorf("Tracing.SamplingRate = %v, want 0.25", *cfg.Tracing.SamplingRate)
	}
	if cfg.Tracing.ServiceName != "edge-proxy" {
		t.Errorf("Tracing.ServiceName = %q, want %q", cfg.Tracing.ServiceName, "edge-proxy")
	}
	if cfg.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", cfg.FilePath(), path)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	path := writeConfig(t, `
[log]
format = "xml"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log format, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "# empty\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.BodyMaxBytes != 32*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 32*1024*1024)
	}
	if cfg.Upstream.TimeoutSeconds != 120 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 120)
	}
	if cfg.Upstream.IdleConnections != 100 {
		t.Errorf("default Upstream.IdleConnections = %d, want %d", cfg.Upstream.IdleConnections, 100)
	}
	if cfg.Upstream.ChunkSizeBytes != 32*1024 {
		t.Errorf("default Upstream.ChunkSizeBytes = %d, want %d", cfg.Upstream.ChunkSizeBytes, 32*1024)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Tracing.ServiceName != "gemini-proxy" {
		t.Errorf("default Tracing.ServiceName = %q, want %q", cfg.Tracing.ServiceName, "gemini-proxy")
	}
	if cfg.Tracing.SamplingRate == nil || *cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("default Tracing.SamplingRate = %v, want 1.0", cfg.Tracing.SamplingRate)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v; missing search-path config should fall back to defaults", err)
	}
	if cfg.FilePath() != "" {
		t.Errorf("FilePath() = %q, want empty", cfg.FilePath())
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for malformed TOML, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want mention of parse", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     3000,
		LogLevel: "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_CLIOverrideValidated(t *testing.T) {
	path := writeConfig(t, "# empty\n")

	_, err := Load(&CLI{Config: path, LogLevel: "loud"})
	if err == nil {
		t.Fatal("Load() expected error for invalid CLI log level, got nil")
	}
}

func TestLoad_NumericBounds(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"negative port", "[server]\nport = -1\n", "server.port"},
		{"port too large", "[server]\nport = 70000\n", "server.port"},
		{"negative body_max_bytes", "[server]\nbody_max_bytes = -1\n", "server.body_max_bytes"},
		{"negative timeout", "[upstream]\ntimeout_seconds = -5\n", "upstream.timeout_seconds"},
		{"negative idle", "[upstream]\nidle_connections = -1\n", "upstream.idle_connections"},
		{"negative tls timeout", "[upstream]\ntls_handshake_timeout_seconds = -1\n", "upstream.tls_handshake_timeout_seconds"},
		{"negative chunk size", "[upstream]\nchunk_size_bytes = -1\n", "upstream.chunk_size_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error for %s, got nil", tt.name)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error = %q, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestLoad_TracingRequiresEndpoint(t *testing.T) {
	path := writeConfig(t, `
[tracing]
enabled = true
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for tracing without endpoint, got nil")
	}
	if !strings.Contains(err.Error(), "tracing.endpoint") {
		t.Errorf("error = %q, want mention of tracing.endpoint", err)
	}
}

func TestLoad_TracingSamplingRateBounds(t *testing.T) {
	for _, rate := range []string{"-0.1", "1.5"} {
		t.Run(rate, func(t *testing.T) {
			path := writeConfig(t, "[tracing]\nsampling_rate = "+rate+"\n")
			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatalf("Load() expected error for sampling_rate=%s, got nil", rate)
			}
		})
	}
}

func TestLoad_TracingSamplingRateZeroKept(t *testing.T) {
	path := writeConfig(t, "[tracing]\nsampling_rate = 0.0\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg.Tracing.SamplingRate != 0 {
		t.Errorf("Tracing.SamplingRate = %v, want explicit 0 to be kept", *cfg.Tracing.SamplingRate)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestWarnPermissions_NoFile(t *testing.T) {
	cfg := &Config{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning when running on defaults, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 8000\n")

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "[server]\nport = 8000\n")
	path2 := writeConfig(t, "[server]\nport = 8000\n")

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPathDefault(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
path = "metrics"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflictsWithReservedRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"v1 exact", "/v1"},
		{"v1beta sub", "/v1beta/metrics"},
		{"upload", "/upload/metrics"},
		{"healthz", "/healthz"},
		{"proxy/status", "/proxy/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, `
[metrics]
enabled = true
path = "`+tt.path+`"
`)

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsPathValid(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
path = "/custom-metrics"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = false
path = "bad-no-slash"
`)

	_, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
