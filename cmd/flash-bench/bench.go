package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/KevoDB/flashkv/pkg/store"
)

// benchConfig holds the workload parameters shared by all benchmarks
type benchConfig struct {
	Names     int
	ValueSize int
	Duration  time.Duration
	ReadRatio float64 // mixed benchmark only
}

func (c benchConfig) name(i int) string {
	return fmt.Sprintf("rec-%03d", i%c.Names)
}

func (c benchConfig) value(seed int) []byte {
	value := make([]byte, c.ValueSize)
	for i := range value {
		value[i] = byte(seed + i)
	}
	return value
}

// compactions reads the compaction count from the store statistics
func compactions(st *store.Store) uint64 {
	count, _ := st.Stats()["compaction_count"].(uint64)
	return count
}

// populate writes every name once so reads have something to find
func populate(ctx context.Context, st *store.Store, cfg benchConfig) error {
	for i := 0; i < cfg.Names; i++ {
		if _, err := st.Write(ctx, cfg.name(i), cfg.value(i)); err != nil {
			return fmt.Errorf("failed to populate %s: %w", cfg.name(i), err)
		}
	}
	return nil
}

// runWriteBenchmark rewrites names round-robin, forcing regular compactions
func runWriteBenchmark(ctx context.Context, st *store.Store, cfg benchConfig) (BenchmarkResult, error) {
	fmt.Println("Running Write Benchmark...")

	before := compactions(st)
	start := time.Now()
	deadline := start.Add(cfg.Duration)

	var ops int
	for time.Now().Before(deadline) {
		if _, err := st.Write(ctx, cfg.name(ops), cfg.value(ops)); err != nil {
			return BenchmarkResult{}, fmt.Errorf("write #%d: %w", ops, err)
		}
		ops++
	}

	return newResult("Write", cfg, ops, time.Since(start), compactions(st)-before), nil
}

// runReadBenchmark looks up random names
func runReadBenchmark(ctx context.Context, st *store.Store, cfg benchConfig) (BenchmarkResult, error) {
	fmt.Println("Running Read Benchmark...")

	if err := populate(ctx, st, cfg); err != nil {
		return BenchmarkResult{}, err
	}

	start := time.Now()
	deadline := start.Add(cfg.Duration)

	var ops, hits int
	for time.Now().Before(deadline) {
		_, err := st.Get(cfg.name(rand.Intn(cfg.Names)))
		switch {
		case err == nil:
			hits++
		case !errors.Is(err, store.ErrNotFound):
			return BenchmarkResult{}, fmt.Errorf("read #%d: %w", ops, err)
		}
		ops++
	}

	result := newResult("Read", cfg, ops, time.Since(start), 0)
	if ops > 0 {
		result.HitRate = float64(hits) / float64(ops) * 100
	}
	return result, nil
}

// runMixedBenchmark interleaves reads and writes at cfg.ReadRatio
func runMixedBenchmark(ctx context.Context, st *store.Store, cfg benchConfig) (BenchmarkResult, error) {
	fmt.Println("Running Mixed Benchmark...")

	if err := populate(ctx, st, cfg); err != nil {
		return BenchmarkResult{}, err
	}

	before := compactions(st)
	start := time.Now()
	deadline := start.Add(cfg.Duration)

	var ops int
	for time.Now().Before(deadline) {
		i := rand.Intn(cfg.Names)
		if rand.Float64() < cfg.ReadRatio {
			if _, err := st.Get(cfg.name(i)); err != nil && !errors.Is(err, store.ErrNotFound) {
				return BenchmarkResult{}, fmt.Errorf("read #%d: %w", ops, err)
			}
		} else if _, err := st.Write(ctx, cfg.name(i), cfg.value(ops)); err != nil {
			return BenchmarkResult{}, fmt.Errorf("write #%d: %w", ops, err)
		}
		ops++
	}

	result := newResult("Mixed", cfg, ops, time.Since(start), compactions(st)-before)
	result.ReadRatio = cfg.ReadRatio * 100
	result.WriteRatio = 100 - result.ReadRatio
	return result, nil
}

// runChurnBenchmark alternates writes and deletes, exercising tombstones
// and the delete path that drops a name during compaction
func runChurnBenchmark(ctx context.Context, st *store.Store, cfg benchConfig) (BenchmarkResult, error) {
	fmt.Println("Running Churn Benchmark...")

	before := compactions(st)
	start := time.Now()
	deadline := start.Add(cfg.Duration)

	var ops int
	for time.Now().Before(deadline) {
		name := cfg.name(ops / 2)
		var err error
		if ops%2 == 0 {
			_, err = st.Write(ctx, name, cfg.value(ops))
			// tombstoned ids stay claimed until compaction reclaims them
			if errors.Is(err, store.ErrIDSpaceExhausted) {
				if err = st.Compact(ctx); err == nil {
					_, err = st.Write(ctx, name, cfg.value(ops))
				}
			}
		} else {
			err = st.Delete(ctx, name)
		}
		if err != nil {
			return BenchmarkResult{}, fmt.Errorf("churn #%d: %w", ops, err)
		}
		ops++
	}

	return newResult("Churn", cfg, ops, time.Since(start), compactions(st)-before), nil
}

func newResult(typ string, cfg benchConfig, ops int, elapsed time.Duration, compacted uint64) BenchmarkResult {
	result := BenchmarkResult{
		BenchmarkType: typ,
		NumNames:      cfg.Names,
		ValueSize:     cfg.ValueSize,
		Operations:    ops,
		Duration:      elapsed.Seconds(),
		Compactions:   int(compacted),
		Timestamp:     time.Now(),
	}
	if ops > 0 && elapsed > 0 {
		result.Throughput = float64(ops) / elapsed.Seconds()
		result.Latency = float64(elapsed.Microseconds()) / float64(ops)
	}
	return result
}
