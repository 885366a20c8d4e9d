// Package store implements a log-structured record store on a raw NOR flash
// region of three pages. Records are appended to the current page; when it
// fills, the latest version of every live record is copied into the next
// page of the rotation and the old page is erased. All state is recomputed
// from flash contents when the store is opened.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/record"
	"github.com/KevoDB/flashkv/pkg/stats"
	"github.com/KevoDB/flashkv/pkg/telemetry"
)

// Addr locates a header inside the region.
type Addr struct {
	Page   int
	Offset uint32
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:0x%03X", a.Page, a.Offset)
}

// Record is a handle to a header found on flash.
type Record struct {
	record.Header
	Addr Addr
}

// End is the offset just past the record's padded payload.
func (r *Record) End() uint32 {
	return r.Addr.Offset + r.Span()
}

// Usage describes how the current page is used.
type Usage struct {
	Page        int
	PageSize    uint32
	Used        uint32
	Free        uint32
	LiveBytes   uint32
	LiveRecords int
	Headers     int
}

// Store is a record store on a flash device.
type Store struct {
	dev          flash.Device
	geom         flash.Geometry
	logger       log.Logger
	stats        stats.Collector
	tel          telemetry.Telemetry
	metrics      StoreMetrics
	flashTimeout time.Duration

	mu         sync.Mutex
	page       int
	maxID      uint8
	maxIDValid bool
	closed     bool
	failed     error // set by a failed flash wait
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStats sets the statistics collector
func WithStats(collector stats.Collector) Option {
	return func(s *Store) {
		s.stats = collector
	}
}

// WithTelemetry sets the telemetry used for metrics and spans
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *Store) {
		s.tel = tel
	}
}

// WithFlashTimeout bounds how long the store waits for a single flash
// operation. Zero waits as long as the caller's context allows.
func WithFlashTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.flashTimeout = d
	}
}

// Open discovers the current page of dev and returns a store ready for use.
// It may erase page 0 when no page holds a valid log.
func Open(ctx context.Context, dev flash.Device, options ...Option) (*Store, error) {
	geom := dev.Geometry()
	if geom.PageCount != flash.DefaultPageCount {
		return nil, fmt.Errorf("%w: store needs %d pages, device has %d",
			flash.ErrGeometryMismatch, flash.DefaultPageCount, geom.PageCount)
	}
	if geom.PageSize <= record.HeaderSize || geom.PageSize%record.WordSize != 0 {
		return nil, fmt.Errorf("%w: page size %d cannot hold a record", flash.ErrGeometryMismatch, geom.PageSize)
	}

	s := &Store{
		dev:    dev,
		geom:   geom,
		logger: log.GetDefaultLogger().WithField("component", "store"),
		stats:  stats.NewAtomicCollector(),
		tel:    telemetry.NewNoop(),
	}
	for _, option := range options {
		option(s)
	}
	s.metrics = NewStoreMetrics(s.tel)

	if err := s.discover(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close waits for any outstanding flash operation. The device itself is
// owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.dev.Busy() {
		if err := s.await(context.Background()); err != nil {
			s.logger.Warn("Flash operation failed during close: %v", err)
		}
	}
	return s.metrics.Close()
}

// Format erases all pages unconditionally and starts an empty log on page 0.
func (s *Store) Format(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	for page := 0; page < s.geom.PageCount; page++ {
		if err := s.erase(ctx, page); err != nil {
			s.stats.TrackError(errorKind(err))
			return fmt.Errorf("failed to format page %d: %w", page, err)
		}
	}

	s.page = 0
	s.maxID = 0
	s.maxIDValid = true
	s.stats.TrackOperationWithLatency(stats.OpFormat, uint64(time.Since(start).Nanoseconds()))
	s.stats.TrackPageUsage(0, 0)
	s.logger.Info("Formatted %d pages", s.geom.PageCount)
	return nil
}

// Page returns the index of the current page.
func (s *Store) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Geometry returns the layout of the underlying device.
func (s *Store) Geometry() flash.Geometry {
	return s.geom
}

// MaxPayload is the largest payload a single record can carry.
func (s *Store) MaxPayload() uint32 {
	return s.geom.PageSize - record.HeaderSize
}

// Usage reports how the current page is used.
func (s *Store) Usage() (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return Usage{}, err
	}

	latest, res, err := s.latest(s.page)
	if err != nil {
		return Usage{}, err
	}

	u := Usage{
		Page:     s.page,
		PageSize: s.geom.PageSize,
		Used:     res.frontier,
		Free:     s.geom.PageSize - res.frontier,
		Headers:  res.count,
	}
	for _, rec := range latest {
		if rec.Tombstone() {
			continue
		}
		u.LiveRecords++
		u.LiveBytes += rec.Span()
	}
	return u, nil
}

// Stats returns the store's operation statistics.
func (s *Store) Stats() map[string]interface{} {
	return s.stats.GetStats()
}

// checkOpen must be called with mu held
func (s *Store) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, s.failed)
	}
	return nil
}
