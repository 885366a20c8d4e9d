// ABOUTME: Tests for telemetry configuration defaults, validation and env overrides

package telemetry

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "flashkv" {
		t.Errorf("expected service name flashkv, got %s", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Error("telemetry should be disabled by default")
	}
	if !cfg.HasExporter("stdout") {
		t.Errorf("expected stdout exporter by default, got %v", cfg.Exporters)
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("unexpected OTLP endpoint %s", cfg.OTLPEndpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty service name", func(c *Config) { c.ServiceName = "" }, "service_name cannot be empty"},
		{"empty service version", func(c *Config) { c.ServiceVersion = "" }, "service_version cannot be empty"},
		{"sample rate too low", func(c *Config) { c.SampleRate = -0.1 }, "sample_rate must be between"},
		{"sample rate too high", func(c *Config) { c.SampleRate = 1.5 }, "sample_rate must be between"},
		{"port zero", func(c *Config) { c.PrometheusPort = 0 }, "prometheus_port must be between"},
		{"port too high", func(c *Config) { c.PrometheusPort = 70000 }, "prometheus_port must be between"},
		{"zero export timeout", func(c *Config) { c.ExportTimeout = 0 }, "export_timeout must be positive"},
		{"zero batch timeout", func(c *Config) { c.BatchTimeout = 0 }, "batch_timeout must be positive"},
		{"zero queue", func(c *Config) { c.MaxQueueSize = 0 }, "max_queue_size must be positive"},
		{"zero batch", func(c *Config) { c.MaxExportBatchSize = 0 }, "max_export_batch_size must be positive"},
		{"jaeger rejected", func(c *Config) { c.Exporters = []string{"jaeger"} }, "invalid exporter: jaeger"},
		{"all exporters", func(c *Config) { c.Exporters = []string{"prometheus", "otlp", "stdout"} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("FLASHKV_TELEMETRY_SERVICE_NAME", "flashkv-bench")
	t.Setenv("FLASHKV_TELEMETRY_SERVICE_VERSION", "1.2.3")
	t.Setenv("FLASHKV_TELEMETRY_ENABLED", "true")
	t.Setenv("FLASHKV_TELEMETRY_EXPORTERS", "prometheus, otlp")
	t.Setenv("FLASHKV_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("FLASHKV_TELEMETRY_PROMETHEUS_PORT", "9191")
	t.Setenv("FLASHKV_TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("FLASHKV_TELEMETRY_EXPORT_TIMEOUT", "10s")
	t.Setenv("FLASHKV_TELEMETRY_BATCH_TIMEOUT", "250ms")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.ServiceName != "flashkv-bench" || cfg.ServiceVersion != "1.2.3" {
		t.Errorf("service identity not loaded: %s %s", cfg.ServiceName, cfg.ServiceVersion)
	}
	if !cfg.Enabled {
		t.Error("expected telemetry enabled")
	}
	if !cfg.HasExporter("prometheus") || !cfg.HasExporter("otlp") || cfg.HasExporter("stdout") {
		t.Errorf("unexpected exporters %v", cfg.Exporters)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("expected sample rate 0.25, got %f", cfg.SampleRate)
	}
	if cfg.PrometheusPort != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.PrometheusPort)
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("unexpected endpoint %s", cfg.OTLPEndpoint)
	}
	if cfg.ExportTimeout != 10*time.Second || cfg.BatchTimeout != 250*time.Millisecond {
		t.Errorf("unexpected timeouts %s %s", cfg.ExportTimeout, cfg.BatchTimeout)
	}
}

func TestConfigLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("FLASHKV_TELEMETRY_ENABLED", "maybe")
	t.Setenv("FLASHKV_TELEMETRY_SAMPLE_RATE", "lots")
	t.Setenv("FLASHKV_TELEMETRY_PROMETHEUS_PORT", "http")
	t.Setenv("FLASHKV_TELEMETRY_EXPORT_TIMEOUT", "soon")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	defaults := DefaultConfig()
	if cfg.Enabled != defaults.Enabled || cfg.SampleRate != defaults.SampleRate ||
		cfg.PrometheusPort != defaults.PrometheusPort || cfg.ExportTimeout != defaults.ExportTimeout {
		t.Errorf("invalid env values should leave defaults in place, got %+v", cfg)
	}
}
