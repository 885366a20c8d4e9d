package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/stats"
	"github.com/KevoDB/flashkv/pkg/telemetry"
)

// deviceError classifies a failure reported by the flash device.
func deviceError(op string, err error) error {
	if errors.Is(err, flash.ErrTimeout) {
		return fmt.Errorf("%w: %s: %w", ErrFlashTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrFlashFault, op, err)
}

// read copies n bytes at offset off of page.
func (s *Store) read(page int, off, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if err := s.dev.ReadAt(buf, s.geom.PageBase(page)+off); err != nil {
		return nil, deviceError("read", err)
	}
	return buf, nil
}

// erased reports whether the n bytes at off of page are all erased.
func (s *Store) erased(page int, off, n uint32) (bool, error) {
	buf, err := s.read(page, off, n)
	if err != nil {
		return false, err
	}
	return flash.IsErased(buf), nil
}

// await blocks until the outstanding operation completes. Only one
// operation is ever in flight; every erase and program is followed by await
// before anything else touches the device. A failed wait is fatal: the
// operation may still land later, so the store stops serving until reopened.
func (s *Store) await(ctx context.Context) error {
	if s.flashTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.flashTimeout)
		defer cancel()
	}
	if err := s.dev.Wait(ctx); err != nil {
		err = deviceError("wait", err)
		s.failed = err
		s.logger.Error("Flash wait failed, store needs reopening: %v", err)
		return err
	}
	return nil
}

// program writes data at off of page and waits for it to land.
func (s *Store) program(ctx context.Context, page int, off uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	start := time.Now()
	err := s.dev.Program(s.geom.PageBase(page)+off, data)
	if err != nil {
		err = deviceError("program", err)
	} else {
		err = s.await(ctx)
	}

	s.trackFlashOp(ctx, stats.OpProgram, telemetry.OpTypeProgram, start, int64(len(data)), err)
	if err != nil {
		return fmt.Errorf("program %d bytes at %s: %w", len(data), Addr{page, off}, err)
	}
	s.stats.TrackBytes(true, uint64(len(data)))
	return nil
}

// erase erases page and waits for it to complete.
func (s *Store) erase(ctx context.Context, page int) error {
	start := time.Now()
	err := s.dev.Erase(page)
	if err != nil {
		err = deviceError("erase", err)
	} else {
		err = s.await(ctx)
	}

	s.trackFlashOp(ctx, stats.OpErase, telemetry.OpTypeErase, start, 0, err)
	if err != nil {
		return fmt.Errorf("erase page %d: %w", page, err)
	}
	s.logger.Debug("Erased page %d", page)
	return nil
}

// eraseIfDirty erases page unless it already reads as blank.
func (s *Store) eraseIfDirty(ctx context.Context, page int) error {
	blank, err := s.erased(page, 0, s.geom.PageSize)
	if err != nil {
		return err
	}
	if blank {
		return nil
	}
	return s.erase(ctx, page)
}

func (s *Store) trackFlashOp(ctx context.Context, op stats.OperationType, opType string, start time.Time, bytes int64, err error) {
	elapsed := time.Since(start)
	status := telemetry.StatusSuccess
	switch {
	case errors.Is(err, ErrFlashTimeout):
		status = telemetry.StatusTimeout
	case err != nil:
		status = telemetry.StatusError
	}

	s.stats.TrackOperationWithLatency(op, uint64(elapsed.Nanoseconds()))
	s.metrics.RecordFlashOp(ctx, opType, elapsed, bytes, status)
}
