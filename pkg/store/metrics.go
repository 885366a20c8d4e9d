// ABOUTME: Store telemetry metrics interface and implementation for record store operations
// ABOUTME: Records write, compaction, corruption, flash operation and discovery metrics

package store

import (
	"context"
	"time"

	"github.com/KevoDB/flashkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// StoreMetrics defines the interface for store telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type StoreMetrics interface {
	telemetry.ComponentMetrics

	// RecordWrite records an append of one header and payload.
	RecordWrite(ctx context.Context, duration time.Duration, bytes int64, tombstone bool, status string)

	// RecordCompaction records a finished page rotation.
	RecordCompaction(ctx context.Context, duration time.Duration, recordsCopied int, bytesReclaimed int64, fromPage, toPage int)

	// RecordCorruption records a scan that ended on a slot that is neither erased nor valid.
	RecordCorruption(ctx context.Context, page int, offset uint32, reason string)

	// RecordFlashOp records a single erase or program including its completion wait.
	RecordFlashOp(ctx context.Context, opType string, duration time.Duration, bytes int64, status string)

	// RecordDiscovery records the startup page scan.
	RecordDiscovery(ctx context.Context, duration time.Duration, page int, recordsFound int)
}

// storeMetrics implements StoreMetrics using the telemetry interface.
type storeMetrics struct {
	tel telemetry.Telemetry
}

// NewStoreMetrics creates a new store metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewStoreMetrics(tel telemetry.Telemetry) StoreMetrics {
	if tel == nil {
		return &noopStoreMetrics{}
	}
	return &storeMetrics{tel: tel}
}

// NewNoopStoreMetrics creates a no-op store metrics implementation for testing.
func NewNoopStoreMetrics() StoreMetrics {
	return &noopStoreMetrics{}
}

func (m *storeMetrics) RecordWrite(ctx context.Context, duration time.Duration, bytes int64, tombstone bool, status string) {
	opType := telemetry.OpTypeWrite
	if tombstone {
		opType = telemetry.OpTypeDelete
	}

	m.tel.RecordHistogram(ctx, "flashkv.store.write.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStore),
		attribute.String(telemetry.AttrOperationType, opType),
		attribute.String(telemetry.AttrStatus, status),
	)

	if status == telemetry.StatusSuccess {
		m.tel.RecordCounter(ctx, "flashkv.store.write.bytes", bytes,
			attribute.String(telemetry.AttrComponent, telemetry.ComponentStore),
			attribute.String(telemetry.AttrOperationType, opType),
		)
	}

	m.tel.RecordCounter(ctx, "flashkv.store.operations.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStore),
		attribute.String(telemetry.AttrOperationType, opType),
		attribute.String(telemetry.AttrStatus, status),
	)
}

func (m *storeMetrics) RecordCompaction(ctx context.Context, duration time.Duration, recordsCopied int, bytesReclaimed int64, fromPage, toPage int) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompactor),
		attribute.Int("from_page", fromPage),
		attribute.Int("to_page", toPage),
	}

	m.tel.RecordHistogram(ctx, "flashkv.compaction.duration", duration.Seconds(), attrs...)
	m.tel.RecordCounter(ctx, "flashkv.compaction.records.copied", int64(recordsCopied), attrs...)
	m.tel.RecordCounter(ctx, "flashkv.compaction.bytes.reclaimed", bytesReclaimed, attrs...)
}

func (m *storeMetrics) RecordCorruption(ctx context.Context, page int, offset uint32, reason string) {
	m.tel.RecordCounter(ctx, "flashkv.store.corruption.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStore),
		attribute.Int(telemetry.AttrPage, page),
		attribute.Int64(telemetry.AttrOffset, int64(offset)),
		attribute.String(telemetry.AttrReason, reason),
	)
}

func (m *storeMetrics) RecordFlashOp(ctx context.Context, opType string, duration time.Duration, bytes int64, status string) {
	m.tel.RecordHistogram(ctx, "flashkv.flash.operation.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentFlash),
		attribute.String(telemetry.AttrOperationType, opType),
		attribute.String(telemetry.AttrStatus, status),
	)

	if bytes > 0 {
		telemetry.RecordBytes(ctx, m.tel, "flashkv.flash.bytes", bytes,
			attribute.String(telemetry.AttrComponent, telemetry.ComponentFlash),
			attribute.String(telemetry.AttrOperationType, opType),
		)
	}
}

func (m *storeMetrics) RecordDiscovery(ctx context.Context, duration time.Duration, page int, recordsFound int) {
	m.tel.RecordHistogram(ctx, "flashkv.store.discovery.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStore),
		attribute.Int(telemetry.AttrPage, page),
	)
	m.tel.RecordCounter(ctx, "flashkv.store.discovery.records", int64(recordsFound),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStore),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *storeMetrics) Close() error {
	return nil
}

// noopStoreMetrics provides a no-op implementation for testing and disabled telemetry.
type noopStoreMetrics struct{}

func (n *noopStoreMetrics) RecordWrite(ctx context.Context, duration time.Duration, bytes int64, tombstone bool, status string) {
}

func (n *noopStoreMetrics) RecordCompaction(ctx context.Context, duration time.Duration, recordsCopied int, bytesReclaimed int64, fromPage, toPage int) {
}

func (n *noopStoreMetrics) RecordCorruption(ctx context.Context, page int, offset uint32, reason string) {
}

func (n *noopStoreMetrics) RecordFlashOp(ctx context.Context, opType string, duration time.Duration, bytes int64, status string) {
}

func (n *noopStoreMetrics) RecordDiscovery(ctx context.Context, duration time.Duration, page int, recordsFound int) {
}

func (n *noopStoreMetrics) Close() error {
	return nil
}
