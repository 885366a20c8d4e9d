package store

import (
	"context"
	"errors"
	"time"
)

// discover picks the current page from flash contents alone. A page
// qualifies when its base slot holds a valid header. With two qualifying
// pages a compaction was cut short, and the source is the one whose
// rotation predecessor does not qualify; its contents are still complete.
func (s *Store) discover(ctx context.Context) error {
	start := s.stats.StartDiscovery()
	n := s.geom.PageCount

	qualifies := make([]bool, n)
	count := 0
	for page := 0; page < n; page++ {
		_, state, err := s.inspect(page, 0)
		if err != nil {
			return err
		}
		qualifies[page] = state == slotValid
		if qualifies[page] {
			count++
		}
	}

	current := -1
	for page := 0; page < n; page++ {
		if qualifies[page] && !qualifies[(page+n-1)%n] {
			current = page
			break
		}
	}

	switch {
	case count == 0:
		current = 0
		if err := s.eraseIfDirty(ctx, current); err != nil {
			return err
		}
		s.logger.Info("No valid page found, starting an empty log on page 0")

	case current < 0:
		current = 0
		s.logger.Warn("All %d pages hold a valid log, using page 0", n)

	case count > 1:
		s.logger.Info("Interrupted compaction detected, resuming from page %d", current)
	}

	s.page = current
	s.maxIDValid = false

	res, err := s.walk(current, nil)
	switch {
	case errors.Is(err, ErrIDConflict):
		s.logger.Error("Page %d violates id uniqueness, format the store to recover: %v", current, err)
	case err != nil:
		return err
	}

	var corrupt uint64
	if res.tail == slotCorrupt {
		corrupt = 1
		s.logger.Warn("Page %d ends in a partially written record at 0x%03X", current, res.frontier)
		s.metrics.RecordCorruption(ctx, current, res.frontier, "partial write")
	}

	s.stats.FinishDiscovery(start, current, uint64(res.count), corrupt)
	s.stats.TrackPageUsage(current, uint64(res.frontier))
	s.metrics.RecordDiscovery(ctx, time.Since(start), current, res.count)

	s.logger.Info("Opened store on page %d with %d headers, %d bytes used", current, res.count, res.frontier)
	return nil
}
