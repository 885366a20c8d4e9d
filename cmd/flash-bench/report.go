package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BenchmarkResult stores the results of a benchmark
type BenchmarkResult struct {
	BenchmarkType string
	NumNames      int
	ValueSize     int
	Medium        string
	Operations    int
	Duration      float64 // seconds
	Throughput    float64 // ops/sec
	Latency       float64 // microseconds per op
	HitRate       float64 // For read benchmarks
	Compactions   int
	ReadRatio     float64 // For mixed benchmarks
	WriteRatio    float64 // For mixed benchmarks
	Timestamp     time.Time
}

// csvColumn maps one CSV column to a BenchmarkResult field
type csvColumn struct {
	name   string
	format func(r *BenchmarkResult) string
	parse  func(r *BenchmarkResult, val string)
}

func intColumn(name string, field func(r *BenchmarkResult) *int) csvColumn {
	return csvColumn{
		name:   name,
		format: func(r *BenchmarkResult) string { return strconv.Itoa(*field(r)) },
		parse:  func(r *BenchmarkResult, val string) { *field(r), _ = strconv.Atoi(val) },
	}
}

func floatColumn(name string, prec int, field func(r *BenchmarkResult) *float64) csvColumn {
	return csvColumn{
		name:   name,
		format: func(r *BenchmarkResult) string { return strconv.FormatFloat(*field(r), 'f', prec, 64) },
		parse:  func(r *BenchmarkResult, val string) { *field(r), _ = strconv.ParseFloat(val, 64) },
	}
}

func stringColumn(name string, field func(r *BenchmarkResult) *string) csvColumn {
	return csvColumn{
		name:   name,
		format: func(r *BenchmarkResult) string { return *field(r) },
		parse:  func(r *BenchmarkResult, val string) { *field(r) = val },
	}
}

var csvColumns = []csvColumn{
	{
		name:   "Timestamp",
		format: func(r *BenchmarkResult) string { return r.Timestamp.Format(time.RFC3339) },
		parse:  func(r *BenchmarkResult, val string) { r.Timestamp, _ = time.Parse(time.RFC3339, val) },
	},
	stringColumn("BenchmarkType", func(r *BenchmarkResult) *string { return &r.BenchmarkType }),
	intColumn("NumNames", func(r *BenchmarkResult) *int { return &r.NumNames }),
	intColumn("ValueSize", func(r *BenchmarkResult) *int { return &r.ValueSize }),
	stringColumn("Medium", func(r *BenchmarkResult) *string { return &r.Medium }),
	intColumn("Operations", func(r *BenchmarkResult) *int { return &r.Operations }),
	floatColumn("Duration", 2, func(r *BenchmarkResult) *float64 { return &r.Duration }),
	floatColumn("Throughput", 2, func(r *BenchmarkResult) *float64 { return &r.Throughput }),
	floatColumn("Latency", 3, func(r *BenchmarkResult) *float64 { return &r.Latency }),
	floatColumn("HitRate", 2, func(r *BenchmarkResult) *float64 { return &r.HitRate }),
	intColumn("Compactions", func(r *BenchmarkResult) *int { return &r.Compactions }),
	floatColumn("ReadRatio", 1, func(r *BenchmarkResult) *float64 { return &r.ReadRatio }),
	floatColumn("WriteRatio", 1, func(r *BenchmarkResult) *float64 { return &r.WriteRatio }),
}

// SaveResultCSV saves benchmark results to a CSV file, creating its directory
func SaveResultCSV(results []BenchmarkResult, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	row := make([]string, len(csvColumns))
	for i, col := range csvColumns {
		row[i] = col.name
	}
	if err := writer.Write(row); err != nil {
		return err
	}

	for i := range results {
		for j, col := range csvColumns {
			row[j] = col.format(&results[i])
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

// LoadResultCSV loads benchmark results from a CSV file. Short rows are skipped
// and fields that do not parse are left zero.
func LoadResultCSV(filename string) ([]BenchmarkResult, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	results := []BenchmarkResult{}
	if len(rows) <= 1 {
		return results, nil
	}

	for _, row := range rows[1:] {
		if len(row) < len(csvColumns) {
			continue
		}
		var result BenchmarkResult
		for i, col := range csvColumns {
			col.parse(&result, row[i])
		}
		results = append(results, result)
	}
	return results, nil
}

// PrintResultTable prints a formatted table of benchmark results
func PrintResultTable(w io.Writer, results []BenchmarkResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}

	const rule = "+-----------------+-------+---------+------------+----------+-------------+----------+"
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "| Benchmark Type  | Names | ValSize | Throughput | Latency  | Hit Rate    | Compacts |")
	fmt.Fprintln(w, rule)

	for _, r := range results {
		hitRate := "-"
		switch r.BenchmarkType {
		case "Read":
			hitRate = fmt.Sprintf("%.2f%%", r.HitRate)
		case "Mixed":
			hitRate = fmt.Sprintf("R:%.0f/W:%.0f", r.ReadRatio, r.WriteRatio)
		}

		latency, unit := r.Latency, "us"
		if latency > 1000 {
			latency, unit = latency/1000, "ms"
		}

		fmt.Fprintf(w, "| %-15s | %5d | %7d | %10.2f | %6.2f%s | %11s | %8d |\n",
			r.BenchmarkType, r.NumNames, r.ValueSize, r.Throughput, latency, unit, hitRate, r.Compactions)
	}
	fmt.Fprintln(w, rule)
}
