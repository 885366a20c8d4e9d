// ABOUTME: OpenTelemetry provider implementation backing the Telemetry interface
// ABOUTME: Owns meter and tracer providers, lazily created instruments and the Prometheus endpoint

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/KevoDB/flashkv"

// TelemetryProvider implements the Telemetry interface using the OpenTelemetry SDK.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer
	metricsServer  *http.Server

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

// New creates a provider for cfg, or a no-op when telemetry is disabled.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	resource := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	readers, metricsHandler, err := createMetricReaders(cfg)
	if err != nil {
		return nil, err
	}

	spanExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, err
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(resource)}
	for _, reader := range readers {
		meterOpts = append(meterOpts, sdkmetric.WithReader(reader))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	for _, exporter := range spanExporters {
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
		))
	}
	tracerProvider := sdktrace.NewTracerProvider(tracerOpts...)

	p := &TelemetryProvider{
		config:         cfg,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		meter:          meterProvider.Meter(instrumentationName),
		tracer:         tracerProvider.Tracer(instrumentationName),
		histograms:     make(map[string]metric.Float64Histogram),
		counters:       make(map[string]metric.Int64Counter),
	}

	if metricsHandler != nil {
		if err := p.serveMetrics(metricsHandler); err != nil {
			p.Shutdown(context.Background())
			return nil, err
		}
	}

	return p, nil
}

func (p *TelemetryProvider) serveMetrics(handler http.Handler) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", p.config.PrometheusPort))
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on port %d: %w", p.config.PrometheusPort, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	p.metricsServer = &http.Server{Handler: mux}

	go func() {
		if err := p.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint stopped: %v", err)
		}
	}()
	return nil
}

func (p *TelemetryProvider) histogram(name string) (metric.Float64Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	p.histograms[name] = h
	return h, nil
}

func (p *TelemetryProvider) counter(name string) (metric.Int64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = c
	return c, nil
}

func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	h, err := p.histogram(name)
	if err != nil {
		log.Debug("dropping histogram %s: %v", name, err)
		return
	}
	h.Record(orBackground(ctx), value, metric.WithAttributes(attrs...))
}

func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := p.counter(name)
	if err != nil {
		log.Debug("dropping counter %s: %v", name, err)
		return
	}
	c.Add(orBackground(ctx), value, metric.WithAttributes(attrs...))
}

func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return p.tracer.Start(orBackground(ctx), name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes pending telemetry and stops the metrics endpoint.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	ctx = orBackground(ctx)

	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider: %w", err))
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	if p.metricsServer != nil {
		if err := p.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics endpoint: %w", err))
		}
	}
	return errors.Join(errs...)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
