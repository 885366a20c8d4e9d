package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBenchStore(t *testing.T, pageSize uint32) *store.Store {
	t.Helper()
	ctrl, err := flash.NewMemoryController(flash.Geometry{PageSize: pageSize, PageCount: flash.DefaultPageCount},
		flash.WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	st, err := store.Open(context.Background(), ctrl, store.WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestWriteBenchmarkCompacts(t *testing.T) {
	st := newBenchStore(t, 256)
	cfg := benchConfig{Names: 2, ValueSize: 8, Duration: 50 * time.Millisecond}

	result, err := runWriteBenchmark(context.Background(), st, cfg)
	require.NoError(t, err)

	assert.Equal(t, "Write", result.BenchmarkType)
	assert.Greater(t, result.Operations, 0)
	assert.Greater(t, result.Throughput, 0.0)
	// a 256 byte page holds five 44 byte records
	if result.Operations > 5 {
		assert.Greater(t, result.Compactions, 0)
	}

	value, err := st.Get("rec-000")
	require.NoError(t, err)
	assert.Len(t, value, 8)
}

func TestReadBenchmarkHitsEveryName(t *testing.T) {
	st := newBenchStore(t, 1024)
	cfg := benchConfig{Names: 4, ValueSize: 4, Duration: 20 * time.Millisecond}

	result, err := runReadBenchmark(context.Background(), st, cfg)
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.HitRate)
	assert.Zero(t, result.Compactions)
}

func TestMixedAndChurnBenchmarks(t *testing.T) {
	ctx := context.Background()
	cfg := benchConfig{Names: 3, ValueSize: 4, Duration: 20 * time.Millisecond, ReadRatio: 0.5}

	result, err := runMixedBenchmark(ctx, newBenchStore(t, 512), cfg)
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.ReadRatio)
	assert.Equal(t, 50.0, result.WriteRatio)

	st := newBenchStore(t, 512)
	result, err = runChurnBenchmark(ctx, st, cfg)
	require.NoError(t, err)
	assert.Greater(t, result.Operations, 0)

	// churn ends on a write or on the matching delete
	records, err := st.List()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(records), 1)
}

func TestValidate(t *testing.T) {
	geom := flash.Geometry{PageSize: 256, PageCount: flash.DefaultPageCount}
	ok := benchConfig{Names: 4, ValueSize: 8, Duration: time.Second, ReadRatio: 0.5}
	require.NoError(t, validate(ok, geom))

	tests := []struct {
		name string
		cfg  benchConfig
	}{
		{"no names", benchConfig{Names: 0, ValueSize: 8, Duration: time.Second}},
		{"too many names", benchConfig{Names: 255, ValueSize: 0, Duration: time.Second}},
		{"no duration", benchConfig{Names: 1, ValueSize: 8}},
		{"bad ratio", benchConfig{Names: 1, ValueSize: 8, Duration: time.Second, ReadRatio: 2}},
		{"does not fit", benchConfig{Names: 5, ValueSize: 8, Duration: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validate(tt.cfg, geom))
		})
	}
}

func TestResultCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	results := []BenchmarkResult{
		{
			BenchmarkType: "Write",
			NumNames:      8,
			ValueSize:     16,
			Medium:        "memory",
			Operations:    1200,
			Duration:      1.5,
			Throughput:    800,
			Latency:       1250,
			Compactions:   12,
			Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{BenchmarkType: "Mixed", NumNames: 8, ReadRatio: 75, WriteRatio: 25, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	require.NoError(t, SaveResultCSV(results, path))
	loaded, err := LoadResultCSV(path)
	require.NoError(t, err)
	assert.Equal(t, results, loaded)

	var out bytes.Buffer
	PrintResultTable(&out, loaded)
	assert.Contains(t, out.String(), "1.25ms")
	assert.Contains(t, out.String(), "R:75/W:25")

	out.Reset()
	PrintResultTable(&out, nil)
	assert.Equal(t, "No results to display\n", out.String())
}
