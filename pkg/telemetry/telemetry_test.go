// ABOUTME: Tests for the core telemetry interface and its no-op implementation
// ABOUTME: Exercises recording helpers and span handling without any exporter

package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()

	tel.RecordHistogram(ctx, "flashkv.test.histogram", 1.5, attribute.String("key", "value"))
	tel.RecordCounter(ctx, "flashkv.test.counter", 10, attribute.String("key", "value"))

	spanCtx, span := tel.StartSpan(ctx, "flashkv.test.span", attribute.String(AttrComponent, ComponentStore))
	if spanCtx != ctx {
		t.Error("noop StartSpan should return the original context")
	}
	if span == nil {
		t.Fatal("StartSpan returned nil span")
	}
	if span.IsRecording() {
		t.Error("noop span should not record")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestRecordHelpers(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()

	RecordDuration(ctx, tel, "flashkv.store.write.duration", time.Now().Add(-time.Millisecond),
		attribute.String(AttrOperationType, OpTypeWrite))
	RecordBytes(ctx, tel, "flashkv.flash.bytes.programmed", 40,
		attribute.Int(AttrPage, 1))
}

func TestConstantsAreDistinct(t *testing.T) {
	groups := map[string][]string{
		"attributes": {AttrOperationType, AttrComponent, AttrStatus, AttrErrorType, AttrReason,
			AttrPage, AttrOffset, AttrRecordName, AttrRecordID},
		"operations": {OpTypeWrite, OpTypeDelete, OpTypeFind, OpTypeRead, OpTypeCompact,
			OpTypeErase, OpTypeProgram, OpTypeFormat},
		"statuses":   {StatusSuccess, StatusError, StatusTimeout},
		"components": {ComponentStore, ComponentFlash, ComponentCompactor, ComponentService},
	}

	for group, values := range groups {
		seen := make(map[string]bool)
		for _, v := range values {
			if v == "" {
				t.Errorf("%s: empty constant", group)
			}
			if seen[v] {
				t.Errorf("%s: duplicate constant %q", group, v)
			}
			seen[v] = true
		}
	}
}
