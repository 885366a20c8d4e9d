package store

import (
	"fmt"
	"time"

	"github.com/KevoDB/flashkv/pkg/record"
	"github.com/KevoDB/flashkv/pkg/stats"
)

// lookup returns the last header on the current page carrying name,
// tombstones included, or nil when the name never appears. Physical order
// decides, not id order.
func (s *Store) lookup(name string) (*Record, error) {
	var found *Record
	_, err := s.walk(s.page, func(rec *Record) error {
		if rec.Name == name {
			found = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// latest maps every name on page to its authoritative header and lists the
// names in the order they first appear.
func (s *Store) latest(page int) (map[string]*Record, scanResult, error) {
	latest := make(map[string]*Record)
	res, err := s.walk(page, func(rec *Record) error {
		latest[rec.Name] = rec
		return nil
	})
	return latest, res, err
}

// maxIDInUse returns the highest id on the current page, scanning only when
// the cached value was invalidated.
func (s *Store) maxIDInUse() (uint8, error) {
	if s.maxIDValid {
		return s.maxID, nil
	}
	res, err := s.walk(s.page, nil)
	if err != nil {
		return 0, err
	}
	s.maxID = res.maxID
	s.maxIDValid = true
	return s.maxID, nil
}

// Find returns the live record stored under name.
func (s *Store) Find(name string) (*Record, error) {
	if err := record.ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	rec, err := s.lookup(name)
	s.stats.TrackOperationWithLatency(stats.OpFind, uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		s.stats.TrackError(errorKind(err))
		return nil, err
	}
	if rec == nil || rec.Tombstone() {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return rec, nil
}

// List returns the live records of the current page, one per name, in the
// order each name first appears in the log.
func (s *Store) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.stats.TrackOperation(stats.OpList)

	latest, _, err := s.latest(s.page)
	if err != nil {
		return nil, err
	}

	var records []*Record
	seen := make(map[string]bool, len(latest))
	_, err = s.walk(s.page, func(rec *Record) error {
		if seen[rec.Name] {
			return nil
		}
		seen[rec.Name] = true
		if auth := latest[rec.Name]; !auth.Tombstone() {
			records = append(records, auth)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
