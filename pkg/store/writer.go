package store

import (
	"context"
	"fmt"
	"time"

	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/record"
	"github.com/KevoDB/flashkv/pkg/stats"
	"github.com/KevoDB/flashkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Write appends payload under name and returns the new record. An existing
// name keeps its id; a new name gets the next id above the highest in use.
// A zero-length payload deletes name as Delete does, and the returned
// record is nil when no tombstone was needed.
func (s *Store) Write(ctx context.Context, name string, payload []byte) (*Record, error) {
	if err := record.ValidateName(name); err != nil {
		return nil, err
	}
	if uint32(len(payload)) > s.MaxPayload() {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLarge, len(payload), s.MaxPayload())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return s.remove(ctx, name)
	}
	return s.write(ctx, name, payload, stats.OpWrite)
}

// Delete appends a tombstone for name. Deleting a name that has no live
// record changes nothing.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := record.ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.remove(ctx, name)
	return err
}

// DeleteRecord tombstones the name of a record handle obtained from this store.
func (s *Store) DeleteRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.validateHandle(rec); err != nil {
		return err
	}
	_, err := s.remove(ctx, rec.Name)
	return err
}

// remove tombstones name when it has a live record. Absent and already
// deleted names cost neither flash nor an id. Must be called with mu held.
func (s *Store) remove(ctx context.Context, name string) (*Record, error) {
	prev, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Tombstone() {
		s.stats.TrackOperation(stats.OpDelete)
		return nil, nil
	}
	return s.write(ctx, name, nil, stats.OpDelete)
}

// Read copies up to len(dst) payload bytes of rec into dst and returns the
// count. The handle must still describe a valid header on the current page.
func (s *Store) Read(rec *Record, dst []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	start := time.Now()
	if err := s.validateHandle(rec); err != nil {
		s.stats.TrackError(errorKind(err))
		return 0, err
	}

	n := min(uint32(len(dst)), rec.Length)
	payload, err := s.read(rec.Addr.Page, rec.Addr.Offset+record.HeaderSize, n)
	if err != nil {
		s.stats.TrackError(errorKind(err))
		return 0, err
	}
	copy(dst, payload)

	s.stats.TrackOperationWithLatency(stats.OpRead, uint64(time.Since(start).Nanoseconds()))
	s.stats.TrackBytes(false, uint64(n))
	return int(n), nil
}

// Get returns a copy of the live payload stored under name.
func (s *Store) Get(name string) ([]byte, error) {
	rec, err := s.Find(name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, rec.Length)
	n, err := s.Read(rec, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// validateHandle re-reads the header behind rec. Handles go stale when
// compaction moves the record to another page.
func (s *Store) validateHandle(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidHandle)
	}
	if rec.Addr.Page != s.page || rec.Addr.Offset%record.WordSize != 0 {
		return fmt.Errorf("%w: %s is not on current page %d", ErrInvalidHandle, rec.Addr, s.page)
	}

	current, state, err := s.inspect(rec.Addr.Page, rec.Addr.Offset)
	if err != nil {
		return err
	}
	if state != slotValid || current.Header != rec.Header {
		return fmt.Errorf("%w: no matching header at %s", ErrInvalidHandle, rec.Addr)
	}
	return nil
}

// write appends one header and payload, compacting once if the current page
// cannot take it. Must be called with mu held.
func (s *Store) write(ctx context.Context, name string, payload []byte, op stats.OperationType) (*Record, error) {
	start := time.Now()
	ctx, span := s.tel.StartSpan(ctx, "flashkv.store.write",
		attribute.String(telemetry.AttrRecordName, name),
		attribute.Int("payload_bytes", len(payload)),
	)
	defer span.End()

	rec, err := s.append(ctx, name, payload, op == stats.OpDelete)

	status := telemetry.StatusSuccess
	switch {
	case err != nil:
		status = telemetry.StatusError
		span.RecordError(err)
		s.stats.TrackError(errorKind(err))
		s.logger.Error("Failed to write %q: %v", name, err)
	case rec == nil:
		s.stats.TrackOperationWithLatency(op, uint64(time.Since(start).Nanoseconds()))
	default:
		span.SetAttributes(attribute.Int(telemetry.AttrRecordID, int(rec.ID)))
		s.stats.TrackOperationWithLatency(op, uint64(time.Since(start).Nanoseconds()))
		s.stats.TrackPageUsage(s.page, uint64(rec.End()))
	}
	s.metrics.RecordWrite(ctx, time.Since(start), int64(len(payload)), len(payload) == 0, status)
	return rec, err
}

// append programs one record. For a delete, a compaction forced by the
// tombstone leaves the name behind, which completes the delete without a
// tombstone and returns a nil record.
func (s *Store) append(ctx context.Context, name string, payload []byte, deleting bool) (*Record, error) {
	prev, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	var id uint8
	if prev != nil {
		id = prev.ID
	} else {
		maxID, err := s.maxIDInUse()
		if err != nil {
			return nil, err
		}
		if maxID >= record.MaxID {
			return nil, fmt.Errorf("%w: cannot assign an id to %q", ErrIDSpaceExhausted, name)
		}
		id = maxID + 1
	}

	hdr, err := record.NewHeader(id, name, payload)
	if err != nil {
		return nil, err
	}

	drop := ""
	if deleting {
		drop = name
	}
	off, compacted, err := s.reserve(ctx, hdr.Span(), drop)
	if err != nil {
		return nil, err
	}
	if compacted && deleting {
		s.logger.Debug("Deleted %q by leaving it out of compaction", name)
		return nil, nil
	}
	page := s.page

	if err := s.program(ctx, page, off, hdr.Encode()); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		padded := make([]byte, record.RoundUp4(hdr.Length))
		for i := len(payload); i < len(padded); i++ {
			padded[i] = flash.ErasedByte
		}
		copy(padded, payload)
		if err := s.program(ctx, page, off+record.HeaderSize, padded); err != nil {
			return nil, err
		}
	}

	if s.maxIDValid && id > s.maxID {
		s.maxID = id
	}

	rec := &Record{Header: hdr, Addr: Addr{Page: page, Offset: off}}
	s.logger.Debug("Wrote %q id=%d len=%d at %s", name, id, hdr.Length, rec.Addr)
	return rec, nil
}

// reserve returns the offset on the current page where span bytes can be
// programmed, compacting once when the page is out of room or its tail is
// not clean. drop names a record the compaction may leave behind.
func (s *Store) reserve(ctx context.Context, span uint32, drop string) (uint32, bool, error) {
	off, ok, err := s.room(span)
	if err != nil || ok {
		return off, false, err
	}

	if err := s.compact(ctx, drop); err != nil {
		return 0, false, err
	}

	off, ok, err = s.room(span)
	if err != nil {
		return 0, true, err
	}
	if !ok && drop == "" {
		return 0, true, fmt.Errorf("%w: %d bytes needed, %d free on page %d",
			ErrStoreFull, span, s.geom.PageSize-off, s.page)
	}
	return off, true, nil
}

// room finds the frontier of the current page and reports whether span
// erased bytes follow it.
func (s *Store) room(span uint32) (uint32, bool, error) {
	res, err := s.walk(s.page, nil)
	if err != nil {
		return 0, false, err
	}

	off := res.frontier
	if s.geom.PageSize-off < span {
		return off, false, nil
	}
	if res.tail == slotErased {
		clean, err := s.erased(s.page, off, span)
		return off, clean, err
	}
	return off, false, nil
}
