package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackPageUsage records how many bytes of the current page are in use
	TrackPageUsage(page int, used uint64)

	// TrackCompaction records a finished page rotation
	TrackCompaction(recordsCopied, bytesReclaimed uint64)

	// StartDiscovery marks the beginning of the startup page scan
	StartDiscovery() time.Time

	// FinishDiscovery completes startup scan statistics
	FinishDiscovery(startTime time.Time, page int, recordsFound, corruptTails uint64)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
