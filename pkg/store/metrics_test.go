package store

import (
	"context"
	"sync"
	"testing"

	"github.com/KevoDB/flashkv/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

// countingTelemetry sums counters by name and operation type
type countingTelemetry struct {
	telemetry.NoopTelemetry

	mu       sync.Mutex
	counters map[string]int64
}

func (c *countingTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := name
	for _, attr := range attrs {
		if string(attr.Key) == telemetry.AttrOperationType {
			key += "/" + attr.Value.AsString()
		}
	}
	c.counters[key] += value
}

func (c *countingTelemetry) counter(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key]
}

func TestProgrammedBytesAreCounted(t *testing.T) {
	ctx := context.Background()
	tel := &countingTelemetry{counters: make(map[string]int64)}
	s, _ := newTestStore(t, 256, WithTelemetry(tel))

	_, err := s.Write(ctx, "hue", []byte("120"))
	require.NoError(t, err)

	// header plus the payload padded to a word
	assert.Equal(t, int64(40), tel.counter("flashkv.flash.bytes/"+telemetry.OpTypeProgram))
	assert.Equal(t, uint64(40), s.Stats()["total_bytes_written"])
}
