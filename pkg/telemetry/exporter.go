// ABOUTME: Exporter factory for metric readers and span exporters (Prometheus, OTLP gRPC, stdout)
// ABOUTME: The Prometheus reader gets its own registry so several providers can coexist in one process

package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func (c *Config) writer() io.Writer {
	if c.Writer != nil {
		return c.Writer
	}
	return os.Stdout
}

// createMetricReaders creates metric readers based on configuration. The
// returned handler is non-nil when a Prometheus endpoint should be served.
func createMetricReaders(cfg Config) ([]sdkmetric.Reader, http.Handler, error) {
	var readers []sdkmetric.Reader
	var handler http.Handler

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case "prometheus":
			registry := prometheus.NewRegistry()
			reader, err := otelprom.New(otelprom.WithRegisterer(registry))
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
			}
			readers = append(readers, reader)
			handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		case "stdout":
			exporter, err := stdoutmetric.New(
				stdoutmetric.WithWriter(cfg.writer()),
				stdoutmetric.WithPrettyPrint(),
			)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(cfg.BatchTimeout),
				sdkmetric.WithTimeout(cfg.ExportTimeout),
			))

		default:
			// otlp carries traces only in this setup
			continue
		}
	}

	return readers, handler, nil
}

// createTraceExporters creates span exporters based on configuration.
func createTraceExporters(cfg Config) ([]sdktrace.SpanExporter, error) {
	var exporters []sdktrace.SpanExporter

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case "otlp":
			exporter, err := otlptracegrpc.New(
				context.Background(),
				otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
				otlptracegrpc.WithInsecure(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		case "stdout":
			exporter, err := stdouttrace.New(
				stdouttrace.WithWriter(cfg.writer()),
				stdouttrace.WithPrettyPrint(),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		default:
			// prometheus doesn't carry traces
			continue
		}
	}

	return exporters, nil
}
