// ABOUTME: Core telemetry abstraction over OpenTelemetry for flashkv store and flash instrumentation
// ABOUTME: Provides metric recording, tracing and lifecycle management with a no-op default

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides the core abstraction over OpenTelemetry for flashkv components.
// Components record metrics and spans through it without depending on the SDK.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes and stops all providers.
	Shutdown(ctx context.Context) error
}

// ComponentMetrics is a marker interface for component-specific metrics interfaces.
type ComponentMetrics interface {
	// Close releases any resources held by the metrics implementation.
	Close() error
}

// NoopTelemetry drops everything.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns the original context and the span already in it, if any.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// RecordDuration records the time since start, in seconds, in a histogram.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// RecordBytes records a byte count in a counter.
func RecordBytes(ctx context.Context, tel Telemetry, name string, bytes int64, attrs ...attribute.KeyValue) {
	tel.RecordCounter(ctx, name, bytes, attrs...)
}

// Attribute keys shared by all components
const (
	AttrOperationType = "operation.type"
	AttrComponent     = "component"
	AttrStatus        = "status"
	AttrErrorType     = "error.type"
	AttrReason        = "reason"

	AttrPage       = "flash.page"
	AttrOffset     = "flash.offset"
	AttrRecordName = "record.name"
	AttrRecordID   = "record.id"
)

// Operation types
const (
	OpTypeWrite   = "write"
	OpTypeDelete  = "delete"
	OpTypeFind    = "find"
	OpTypeRead    = "read"
	OpTypeCompact = "compact"
	OpTypeErase   = "erase"
	OpTypeProgram = "program"
	OpTypeFormat  = "format"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Component names
const (
	ComponentStore     = "store"
	ComponentFlash     = "flash"
	ComponentCompactor = "compactor"
	ComponentService   = "service"
)
