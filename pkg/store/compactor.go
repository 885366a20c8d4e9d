package store

import (
	"context"
	"fmt"
	"time"

	"github.com/KevoDB/flashkv/pkg/record"
	"github.com/KevoDB/flashkv/pkg/stats"
	"github.com/KevoDB/flashkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// idSet is a 256-bit presence set keyed by record id
type idSet [4]uint64

func (b *idSet) has(id uint8) bool {
	return b[id>>6]&(1<<(id&63)) != 0
}

func (b *idSet) add(id uint8) {
	b[id>>6] |= 1 << (id & 63)
}

// Compact rotates the log into the next page, keeping only the latest live
// version of every record.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.compact(ctx, ""); err != nil {
		s.stats.TrackError(errorKind(err))
		return err
	}
	return nil
}

// compact copies the authoritative header and payload of every live name
// from the current page into the next page, then erases the current page.
// The source stays intact until the copy is complete, so a reset at any
// step leaves one complete page behind. The store switches to the new page
// before the source erase is issued. A non-empty drop names a record
// being deleted, which is not copied. Must be called with mu held.
func (s *Store) compact(ctx context.Context, drop string) error {
	start := time.Now()
	src := s.page
	dst := (src + 1) % s.geom.PageCount

	ctx, span := s.tel.StartSpan(ctx, "flashkv.store.compact",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCompactor),
		attribute.Int("from_page", src),
		attribute.Int("to_page", dst),
	)
	defer span.End()

	logger := s.logger.WithFields(map[string]interface{}{
		"from_page": src,
		"to_page":   dst,
	})

	latest, srcRes, err := s.latest(src)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("compaction scan of page %d: %w", src, err)
	}

	if err := s.eraseIfDirty(ctx, dst); err != nil {
		span.RecordError(err)
		return err
	}

	var copied idSet
	var off uint32
	records := 0

	_, err = s.walk(src, func(rec *Record) error {
		auth := latest[rec.Name]
		if auth.Tombstone() || auth.Name == drop || copied.has(auth.ID) {
			return nil
		}

		raw, err := s.read(src, auth.Addr.Offset, auth.Span())
		if err != nil {
			return err
		}
		if err := s.program(ctx, dst, off, raw[:record.HeaderSize]); err != nil {
			return err
		}
		if err := s.program(ctx, dst, off+record.HeaderSize, raw[record.HeaderSize:]); err != nil {
			return err
		}

		logger.Debug("Copied %q id=%d from 0x%03X to 0x%03X", auth.Name, auth.ID, auth.Addr.Offset, off)
		copied.add(auth.ID)
		off += auth.Span()
		records++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("compaction of page %d into %d: %w", src, dst, err)
	}

	// dst now holds every live record; src is redundant from here on
	s.page = dst
	s.maxIDValid = false

	if err := s.erase(ctx, src); err != nil {
		span.RecordError(err)
		return fmt.Errorf("compaction erase of page %d: %w", src, err)
	}

	reclaimed := srcRes.frontier - off
	elapsed := time.Since(start)
	s.stats.TrackOperationWithLatency(stats.OpCompact, uint64(elapsed.Nanoseconds()))
	s.stats.TrackCompaction(uint64(records), uint64(reclaimed))
	s.stats.TrackPageUsage(dst, uint64(off))
	s.metrics.RecordCompaction(ctx, elapsed, records, int64(reclaimed), src, dst)

	logger.Info("Compacted %d records (%d bytes) reclaiming %d bytes in %v", records, off, reclaimed, elapsed)
	return nil
}
