package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Store and flash operation types
const (
	OpWrite   OperationType = "write"
	OpFind    OperationType = "find"
	OpRead    OperationType = "read"
	OpDelete  OperationType = "delete"
	OpList    OperationType = "list"
	OpCompact OperationType = "compact"
	OpFormat  OperationType = "format"
	OpErase   OperationType = "erase"
	OpProgram OperationType = "program"
)

// AtomicCollector provides centralized statistics collection with minimal contention
// using atomic operations for thread safety
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex // Only used when creating new counter entries

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	totalBytesRead    atomic.Uint64
	totalBytesWritten atomic.Uint64

	currentPage atomic.Int64
	pageUsed    atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex // Only used when creating new error entries

	compactionCount atomic.Uint64
	recordsCopied   atomic.Uint64
	bytesReclaimed  atomic.Uint64

	discoveryStats DiscoveryStats

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex // Only used when creating new latency trackers
}

// DiscoveryStats describes the last startup scan of the flash region
type DiscoveryStats struct {
	Page         atomic.Int64
	RecordsFound atomic.Uint64
	CorruptTails atomic.Uint64
	Duration     atomic.Int64 // nanoseconds
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // sum in nanoseconds
	max   atomic.Uint64 // max in nanoseconds
	min   atomic.Uint64 // min in nanoseconds, 0 until the first sample
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	c := &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
	c.currentPage.Store(-1)
	c.discoveryStats.Page.Store(-1)
	return c
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreateCounter(op).Add(1)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)

	for {
		current := tracker.max.Load()
		if latencyNs <= current || tracker.max.CompareAndSwap(current, latencyNs) {
			break
		}
	}

	for {
		current := tracker.min.Load()
		if current != 0 && latencyNs >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, latencyNs) {
			break
		}
	}
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// TrackBytes adds the specified number of bytes to the read or write counter
func (c *AtomicCollector) TrackBytes(isWrite bool, bytes uint64) {
	if isWrite {
		c.totalBytesWritten.Add(bytes)
	} else {
		c.totalBytesRead.Add(bytes)
	}
}

// TrackPageUsage records the current page and its append offset
func (c *AtomicCollector) TrackPageUsage(page int, used uint64) {
	c.currentPage.Store(int64(page))
	c.pageUsed.Store(used)
}

// TrackCompaction records a finished page rotation
func (c *AtomicCollector) TrackCompaction(recordsCopied, bytesReclaimed uint64) {
	c.compactionCount.Add(1)
	c.recordsCopied.Add(recordsCopied)
	c.bytesReclaimed.Add(bytesReclaimed)
}

// StartDiscovery resets discovery statistics
func (c *AtomicCollector) StartDiscovery() time.Time {
	c.discoveryStats.Page.Store(-1)
	c.discoveryStats.RecordsFound.Store(0)
	c.discoveryStats.CorruptTails.Store(0)
	c.discoveryStats.Duration.Store(0)

	return time.Now()
}

// FinishDiscovery completes discovery statistics
func (c *AtomicCollector) FinishDiscovery(startTime time.Time, page int, recordsFound, corruptTails uint64) {
	c.discoveryStats.Page.Store(int64(page))
	c.discoveryStats.RecordsFound.Store(recordsFound)
	c.discoveryStats.CorruptTails.Store(corruptTails)
	c.discoveryStats.Duration.Store(time.Since(startTime).Nanoseconds())
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["total_bytes_read"] = c.totalBytesRead.Load()
	stats["total_bytes_written"] = c.totalBytesWritten.Load()
	stats["current_page"] = c.currentPage.Load()
	stats["page_used_bytes"] = c.pageUsed.Load()
	stats["compaction_count"] = c.compactionCount.Load()
	stats["compaction_records_copied"] = c.recordsCopied.Load()
	stats["compaction_bytes_reclaimed"] = c.bytesReclaimed.Load()

	c.errorsMu.RLock()
	errorStats := make(map[string]interface{})
	for errType, counter := range c.errors {
		errorStats[errType] = counter.Load()
	}
	c.errorsMu.RUnlock()
	stats["errors"] = errorStats

	discovery := map[string]interface{}{
		"page":          c.discoveryStats.Page.Load(),
		"records_found": c.discoveryStats.RecordsFound.Load(),
		"corrupt_tails": c.discoveryStats.CorruptTails.Load(),
	}
	if d := c.discoveryStats.Duration.Load(); d > 0 {
		discovery["duration_us"] = d / int64(time.Microsecond)
	}
	stats["discovery"] = discovery

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}

		latencyStats := map[string]interface{}{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if min := tracker.min.Load(); min != 0 {
			latencyStats["min_ns"] = min
		}
		if max := tracker.max.Load(); max != 0 {
			latencyStats["max_ns"] = max
		}

		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics filtered by prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	allStats := c.GetStats()
	filtered := make(map[string]interface{})

	for key, value := range allStats {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}

	return filtered
}

func (c *AtomicCollector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}
