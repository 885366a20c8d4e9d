package store

import (
	"fmt"

	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/record"
)

// slotState says what a scan found at a header slot
type slotState int

const (
	// slotValid holds a present header whose payload matches its checksum
	slotValid slotState = iota
	// slotErased is the unwritten frontier of the log
	slotErased
	// slotCorrupt is neither erased nor valid, usually a write cut short by a reset
	slotCorrupt
	// slotEnd means no header fits before the end of the page
	slotEnd
)

func (st slotState) String() string {
	switch st {
	case slotValid:
		return "valid"
	case slotErased:
		return "erased"
	case slotCorrupt:
		return "corrupt"
	default:
		return "end"
	}
}

// inspect examines the header slot at off of page. A slot that is not valid
// ends the log; it is reported through the state, never as an error.
func (s *Store) inspect(page int, off uint32) (*Record, slotState, error) {
	if off > s.geom.PageSize || s.geom.PageSize-off < record.HeaderSize {
		return nil, slotEnd, nil
	}

	raw, err := s.read(page, off, record.HeaderSize)
	if err != nil {
		return nil, slotEnd, err
	}
	hdr, err := record.Decode(raw)
	if err != nil {
		return nil, slotEnd, err
	}

	if !hdr.Present() {
		if flash.IsErased(raw) {
			return nil, slotErased, nil
		}
		return nil, slotCorrupt, nil
	}

	if hdr.Length > s.geom.PageSize-off-record.HeaderSize {
		return nil, slotCorrupt, nil
	}

	payload, err := s.read(page, off+record.HeaderSize, hdr.Length)
	if err != nil {
		return nil, slotEnd, err
	}
	if !hdr.Verify(payload) {
		return nil, slotCorrupt, nil
	}

	return &Record{Header: hdr, Addr: Addr{Page: page, Offset: off}}, slotValid, nil
}

// next returns the record following prev on page, or the record at the page
// base when prev is nil. A nil record ends the scan and the state says why.
// The scanner keeps no cursor of its own; the caller holds prev.
func (s *Store) next(page int, prev *Record) (*Record, slotState, error) {
	var off uint32
	if prev != nil {
		off = prev.End()
	}
	return s.inspect(page, off)
}

// scanResult summarizes a walk over a page
type scanResult struct {
	count    int
	last     *Record
	maxID    uint8
	frontier uint32
	tail     slotState
}

// walk visits every valid record of page in log order. It fails with
// ErrIDConflict as soon as one id shows up under two names.
func (s *Store) walk(page int, fn func(*Record) error) (scanResult, error) {
	var res scanResult
	var owners [256]string

	var prev *Record
	for {
		rec, state, err := s.next(page, prev)
		if err != nil {
			return res, err
		}
		if rec == nil {
			res.tail = state
			break
		}

		if owner := owners[rec.ID]; owner != "" && owner != rec.Name {
			return res, fmt.Errorf("%w: id %d used by %q and %q at %s", ErrIDConflict, rec.ID, owner, rec.Name, rec.Addr)
		}
		owners[rec.ID] = rec.Name

		res.count++
		res.last = rec
		if rec.ID > res.maxID {
			res.maxID = rec.ID
		}
		res.frontier = rec.End()

		if fn != nil {
			if err := fn(rec); err != nil {
				return res, err
			}
		}
		prev = rec
	}

	if res.tail == slotCorrupt {
		s.logger.Debug("Scan of page %d ended on a corrupt slot at 0x%03X", page, res.frontier)
	}
	return res, nil
}
