package stats

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpWrite)
	collector.TrackOperation(OpWrite)
	collector.TrackOperation(OpFind)

	stats := collector.GetStats()

	if stats["write_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 write operations, got %v", stats["write_ops"])
	}

	if stats["find_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 find operation, got %v", stats["find_ops"])
	}

	if _, exists := stats["last_write_time"]; !exists {
		t.Errorf("Expected last_write_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpProgram, 100)
	collector.TrackOperationWithLatency(OpProgram, 200)
	collector.TrackOperationWithLatency(OpProgram, 300)

	stats := collector.GetStats()

	latencyStats, ok := stats["program_latency"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected program_latency to be a map, got %T", stats["program_latency"])
	}

	if count := latencyStats["count"].(uint64); count != 3 {
		t.Errorf("Expected 3 latency records, got %v", count)
	}
	if avg := latencyStats["avg_ns"].(uint64); avg != 200 {
		t.Errorf("Expected average latency 200ns, got %v", avg)
	}
	if min := latencyStats["min_ns"].(uint64); min != 100 {
		t.Errorf("Expected min latency 100ns, got %v", min)
	}
	if max := latencyStats["max_ns"].(uint64); max != 300 {
		t.Errorf("Expected max latency 300ns, got %v", max)
	}
	if ops := stats["program_ops"].(uint64); ops != 3 {
		t.Errorf("Expected 3 program operations, got %v", ops)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewAtomicCollector()
	const numGoroutines = 10
	const opsPerGoroutine = 999

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()

			for j := 0; j < opsPerGoroutine; j++ {
				switch j % 3 {
				case 0:
					collector.TrackOperation(OpWrite)
				case 1:
					collector.TrackOperation(OpRead)
				case 2:
					collector.TrackOperationWithLatency(OpErase, uint64(j))
				}
			}
		}()
	}

	wg.Wait()

	stats := collector.GetStats()
	expectedOps := uint64(numGoroutines * opsPerGoroutine / 3)

	for _, key := range []string{"write_ops", "read_ops", "erase_ops"} {
		if ops := stats[key].(uint64); ops != expectedOps {
			t.Errorf("Expected %d for %s, got %v", expectedOps, key, ops)
		}
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpWrite)
	collector.TrackOperation(OpFind)
	collector.TrackOperation(OpFind)
	collector.TrackError("store_full")

	findStats := collector.GetStatsFiltered("find")
	if _, exists := findStats["find_ops"]; !exists {
		t.Errorf("Expected find_ops in filtered stats")
	}
	if _, exists := findStats["write_ops"]; exists {
		t.Errorf("Did not expect write_ops in find-filtered stats")
	}

	errorStats := collector.GetStatsFiltered("error")
	errs, ok := errorStats["errors"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected errors in error-filtered stats")
	}
	if errs["store_full"].(uint64) != 1 {
		t.Errorf("Expected one store_full error, got %v", errs["store_full"])
	}
}

func TestCollector_TrackBytes(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackBytes(true, 1000)
	collector.TrackBytes(false, 500)

	stats := collector.GetStats()

	if bytesWritten := stats["total_bytes_written"].(uint64); bytesWritten != 1000 {
		t.Errorf("Expected 1000 bytes written, got %v", bytesWritten)
	}
	if bytesRead := stats["total_bytes_read"].(uint64); bytesRead != 500 {
		t.Errorf("Expected 500 bytes read, got %v", bytesRead)
	}
}

func TestCollector_PageUsageAndCompaction(t *testing.T) {
	collector := NewAtomicCollector()

	stats := collector.GetStats()
	if page := stats["current_page"].(int64); page != -1 {
		t.Errorf("Expected no current page before tracking, got %v", page)
	}

	collector.TrackPageUsage(2, 360)
	collector.TrackCompaction(4, 880)
	collector.TrackCompaction(3, 920)

	stats = collector.GetStats()
	if page := stats["current_page"].(int64); page != 2 {
		t.Errorf("Expected current page 2, got %v", page)
	}
	if used := stats["page_used_bytes"].(uint64); used != 360 {
		t.Errorf("Expected 360 used bytes, got %v", used)
	}
	if count := stats["compaction_count"].(uint64); count != 2 {
		t.Errorf("Expected 2 compactions, got %v", count)
	}
	if copied := stats["compaction_records_copied"].(uint64); copied != 7 {
		t.Errorf("Expected 7 copied records, got %v", copied)
	}
	if reclaimed := stats["compaction_bytes_reclaimed"].(uint64); reclaimed != 1800 {
		t.Errorf("Expected 1800 reclaimed bytes, got %v", reclaimed)
	}
}

func TestCollector_DiscoveryStats(t *testing.T) {
	collector := NewAtomicCollector()

	startTime := collector.StartDiscovery()
	time.Sleep(2 * time.Millisecond)
	collector.FinishDiscovery(startTime, 1, 12, 1)

	stats := collector.GetStats()
	discovery, ok := stats["discovery"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected discovery stats to be a map")
	}

	if page := discovery["page"].(int64); page != 1 {
		t.Errorf("Expected page 1, got %v", page)
	}
	if found := discovery["records_found"].(uint64); found != 12 {
		t.Errorf("Expected 12 records, got %v", found)
	}
	if tails := discovery["corrupt_tails"].(uint64); tails != 1 {
		t.Errorf("Expected 1 corrupt tail, got %v", tails)
	}
	if _, exists := discovery["duration_us"]; !exists {
		t.Errorf("Expected discovery duration to be recorded")
	}
}
