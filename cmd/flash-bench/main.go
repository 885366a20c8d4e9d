package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/record"
	"github.com/KevoDB/flashkv/pkg/store"
)

const (
	defaultValueSize = 16
	defaultNameCount = 32
)

var (
	// Command line flags
	benchmarkType = flag.String("type", "all", "Type of benchmark to run (write, read, mixed, churn, or all)")
	duration      = flag.Duration("duration", 5*time.Second, "Duration to run each benchmark")
	numNames      = flag.Int("names", defaultNameCount, "Number of distinct record names (at most 254)")
	valueSize     = flag.Int("value-size", defaultValueSize, "Size of payloads in bytes")
	pageSize      = flag.Uint("page-size", flash.DefaultPageSize, "Flash page size in bytes")
	latency       = flag.Duration("latency", 0, "Simulated latency of each program and erase")
	readRatio     = flag.Float64("read-ratio", 0.75, "Fraction of reads in the mixed benchmark")
	imagePath     = flag.String("image", "", "Run against a flash image file instead of memory")
	cpuProfile    = flag.String("cpu-profile", "", "Write CPU profile to file")
	memProfile    = flag.String("mem-profile", "", "Write memory profile to file")
	resultsFile   = flag.String("results", "", "File to write results to (in addition to stdout)")
	csvFile       = flag.String("csv", "", "File to write results to as CSV")
)

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	cfg := benchConfig{
		Names:     *numNames,
		ValueSize: *valueSize,
		Duration:  *duration,
		ReadRatio: *readRatio,
	}
	geom := flash.Geometry{PageSize: uint32(*pageSize), PageCount: flash.DefaultPageCount}
	if err := validate(cfg, geom); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid benchmark parameters: %v\n", err)
		os.Exit(1)
	}

	// Benchmarks log nothing below warnings
	log.GetDefaultLogger().SetLevel(log.LevelWarn)

	medium := "memory"
	if *imagePath != "" {
		medium = "file"
	}

	var report []string
	report = append(report, fmt.Sprintf("Benchmark Report (%s)", time.Now().Format(time.RFC3339)))
	report = append(report, fmt.Sprintf("Names: %d, Value Size: %d bytes, Page Size: %d, Duration: %s, Medium: %s",
		cfg.Names, cfg.ValueSize, geom.PageSize, cfg.Duration, medium))

	var results []BenchmarkResult
	for _, typ := range strings.Split(*benchmarkType, ",") {
		typ = strings.ToLower(strings.TrimSpace(typ))

		var kinds []string
		switch typ {
		case "all":
			kinds = []string{"write", "read", "mixed", "churn"}
		case "write", "read", "mixed", "churn":
			kinds = []string{typ}
		default:
			fmt.Fprintf(os.Stderr, "Unknown benchmark type: %s\n", typ)
			continue
		}

		for _, kind := range kinds {
			result, err := runOne(kind, cfg, geom, *imagePath, *latency)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s benchmark failed: %v\n", kind, err)
				continue
			}
			result.Medium = medium
			results = append(results, result)
			report = append(report, formatResult(result))
		}
	}

	fmt.Println("\nBenchmark Results:")
	for _, line := range report {
		fmt.Println(line)
	}
	fmt.Println()
	PrintResultTable(os.Stdout, results)

	if *resultsFile != "" {
		if err := os.WriteFile(*resultsFile, []byte(strings.Join(report, "\n")+"\n"), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results to file: %v\n", err)
		} else {
			fmt.Printf("Results written to %s\n", *resultsFile)
		}
	}

	if *csvFile != "" {
		if err := SaveResultCSV(results, *csvFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write CSV results: %v\n", err)
		} else {
			fmt.Printf("CSV results written to %s\n", *csvFile)
		}
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
			os.Exit(1)
		}
	}
}

// validate checks that every name fits on one page alongside the others,
// otherwise the write benchmarks end in ErrStoreFull
func validate(cfg benchConfig, geom flash.Geometry) error {
	if err := geom.Validate(); err != nil {
		return err
	}
	if cfg.Names < 1 || cfg.Names > 254 {
		return fmt.Errorf("names must be between 1 and 254, got %d", cfg.Names)
	}
	if cfg.ValueSize < 0 {
		return fmt.Errorf("value size must not be negative")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if cfg.ReadRatio < 0 || cfg.ReadRatio > 1 {
		return fmt.Errorf("read ratio must be between 0 and 1")
	}

	// one spare slot keeps compaction able to append the rewritten record
	span := uint64(record.HeaderSize + record.RoundUp4(uint32(cfg.ValueSize)))
	if need := span * uint64(cfg.Names+1); need > uint64(geom.PageSize) {
		return fmt.Errorf("%d names of %d bytes need %d bytes, page holds %d",
			cfg.Names, cfg.ValueSize, need, geom.PageSize)
	}
	return nil
}

// runOne runs a benchmark on a freshly erased store
func runOne(kind string, cfg benchConfig, geom flash.Geometry, path string, latency time.Duration) (BenchmarkResult, error) {
	ctx := context.Background()

	dev, err := openDevice(geom, path, latency)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer dev.Close()

	st, err := store.Open(ctx, dev)
	if err != nil {
		return BenchmarkResult{}, err
	}
	defer st.Close()

	if err := st.Format(ctx); err != nil {
		return BenchmarkResult{}, err
	}

	switch kind {
	case "write":
		return runWriteBenchmark(ctx, st, cfg)
	case "read":
		return runReadBenchmark(ctx, st, cfg)
	case "mixed":
		return runMixedBenchmark(ctx, st, cfg)
	default:
		return runChurnBenchmark(ctx, st, cfg)
	}
}

func openDevice(geom flash.Geometry, path string, latency time.Duration) (*flash.Controller, error) {
	if path == "" {
		return flash.NewMemoryController(geom, flash.WithLatency(latency))
	}

	medium, err := flash.OpenFileMedium(path, geom.Size())
	if err != nil {
		return nil, err
	}
	ctrl, err := flash.NewController(medium, geom, flash.WithLatency(latency))
	if err != nil {
		medium.Close()
		return nil, err
	}
	return ctrl, nil
}

func formatResult(r BenchmarkResult) string {
	line := fmt.Sprintf("%s: %d ops in %.2fs (%.2f ops/sec, %.2f us/op)",
		r.BenchmarkType, r.Operations, r.Duration, r.Throughput, r.Latency)
	switch r.BenchmarkType {
	case "Read":
		line += fmt.Sprintf(", hit rate %.2f%%", r.HitRate)
	case "Mixed":
		line += fmt.Sprintf(", %.0f%% reads", r.ReadRatio)
	}
	if r.Compactions > 0 {
		line += fmt.Sprintf(", %d compactions", r.Compactions)
	}
	return line
}
