// ABOUTME: Configuration for telemetry providers and exporters with env overrides and validation
// ABOUTME: Defaults keep telemetry off so the shell and tests stay quiet unless asked

package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config selects the exporters New wires up and how they batch and sample.
type Config struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Enabled        bool   `json:"enabled"`

	// Exporters is any of prometheus, otlp and stdout
	Exporters  []string `json:"exporters"`
	SampleRate float64  `json:"sample_rate"` // fraction of traces kept

	PrometheusPort int    `json:"prometheus_port"`
	OTLPEndpoint   string `json:"otlp_endpoint"` // host:port, gRPC

	ExportTimeout      time.Duration `json:"export_timeout"`
	BatchTimeout       time.Duration `json:"batch_timeout"`
	MaxQueueSize       int           `json:"max_queue_size"`
	MaxExportBatchSize int           `json:"max_export_batch_size"`

	// Writer receives stdout exporter output; nil means os.Stdout
	Writer io.Writer `json:"-"`
}

// DefaultConfig returns a disabled configuration exporting to stdout once enabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "flashkv",
		ServiceVersion:     "development",
		Enabled:            false,
		Exporters:          []string{"stdout"},
		SampleRate:         1.0,
		PrometheusPort:     9090,
		OTLPEndpoint:       "localhost:4317",
		ExportTimeout:      30 * time.Second,
		BatchTimeout:       5 * time.Second,
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
	}
}

// envPrefix namespaces every telemetry environment variable
const envPrefix = "FLASHKV_TELEMETRY_"

// exporterNames lists the exporters New knows how to build
var exporterNames = []string{"prometheus", "otlp", "stdout"}

// envBinding applies one environment variable to a Config. Values that do
// not parse are ignored and the current setting is kept.
type envBinding struct {
	suffix string
	apply  func(c *Config, val string) error
}

var envBindings = []envBinding{
	{"SERVICE_NAME", func(c *Config, val string) error { c.ServiceName = val; return nil }},
	{"SERVICE_VERSION", func(c *Config, val string) error { c.ServiceVersion = val; return nil }},
	{"ENABLED", func(c *Config, val string) (err error) { c.Enabled, err = parseInto(c.Enabled, val, strconv.ParseBool); return }},
	{"EXPORTERS", func(c *Config, val string) error {
		var exporters []string
		for _, name := range strings.Split(val, ",") {
			exporters = append(exporters, strings.TrimSpace(name))
		}
		c.Exporters = exporters
		return nil
	}},
	{"SAMPLE_RATE", func(c *Config, val string) (err error) {
		c.SampleRate, err = parseInto(c.SampleRate, val, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
		return
	}},
	{"PROMETHEUS_PORT", func(c *Config, val string) (err error) { c.PrometheusPort, err = parseInto(c.PrometheusPort, val, strconv.Atoi); return }},
	{"OTLP_ENDPOINT", func(c *Config, val string) error { c.OTLPEndpoint = val; return nil }},
	{"EXPORT_TIMEOUT", func(c *Config, val string) (err error) { c.ExportTimeout, err = parseInto(c.ExportTimeout, val, time.ParseDuration); return }},
	{"BATCH_TIMEOUT", func(c *Config, val string) (err error) { c.BatchTimeout, err = parseInto(c.BatchTimeout, val, time.ParseDuration); return }},
}

// parseInto returns the parsed value, or current when val does not parse
func parseInto[T any](current T, val string, parse func(string) (T, error)) (T, error) {
	parsed, err := parse(val)
	if err != nil {
		return current, err
	}
	return parsed, nil
}

// LoadFromEnv overrides fields from FLASHKV_TELEMETRY_* variables that are set.
func (c *Config) LoadFromEnv() {
	for _, b := range envBindings {
		if val, ok := os.LookupEnv(envPrefix + b.suffix); ok && val != "" {
			_ = b.apply(c, val)
		}
	}
}

// Validate reports every invalid field, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ServiceName != "", "service_name cannot be empty")
	check(c.ServiceVersion != "", "service_version cannot be empty")
	check(c.SampleRate >= 0 && c.SampleRate <= 1, "sample_rate must be between 0.0 and 1.0, got %f", c.SampleRate)
	check(c.PrometheusPort >= 1 && c.PrometheusPort <= 65535, "prometheus_port must be between 1 and 65535, got %d", c.PrometheusPort)
	check(c.ExportTimeout > 0, "export_timeout must be positive, got %s", c.ExportTimeout)
	check(c.BatchTimeout > 0, "batch_timeout must be positive, got %s", c.BatchTimeout)
	check(c.MaxQueueSize > 0, "max_queue_size must be positive, got %d", c.MaxQueueSize)
	check(c.MaxExportBatchSize > 0, "max_export_batch_size must be positive, got %d", c.MaxExportBatchSize)
	for _, exporter := range c.Exporters {
		check(slices.Contains(exporterNames, exporter), "invalid exporter: %s, valid options are: %s",
			exporter, strings.Join(exporterNames, ", "))
	}

	return errors.Join(errs...)
}

// HasExporter reports whether the named exporter is configured.
func (c *Config) HasExporter(name string) bool {
	return slices.Contains(c.Exporters, name)
}
