package store

import (
	"errors"

	"github.com/KevoDB/flashkv/pkg/record"
)

var (
	// ErrNotFound is returned when a name has no live record
	ErrNotFound = errors.New("record not found")

	// ErrNameTooLong, ErrEmptyName and ErrInvalidName reject names that do not fit the header
	ErrNameTooLong = record.ErrNameTooLong
	ErrEmptyName   = record.ErrEmptyName
	ErrInvalidName = record.ErrInvalidName

	// ErrIDSpaceExhausted is returned when a new name needs an id above record.MaxID
	ErrIDSpaceExhausted = errors.New("record id space exhausted")

	// ErrStoreFull is returned when a record does not fit even after compaction
	ErrStoreFull = errors.New("store is full")

	// ErrRecordTooLarge is returned for payloads that can never fit in a page
	ErrRecordTooLarge = errors.New("record larger than a page")

	// ErrInvalidHandle is returned when a record handle no longer describes a header on flash
	ErrInvalidHandle = errors.New("invalid record handle")

	// ErrIDConflict is returned when two names share an id in the current page
	ErrIDConflict = errors.New("record id shared by two names")

	// ErrFlashFault wraps any failure reported by the flash device
	ErrFlashFault = errors.New("flash fault")

	// ErrFlashTimeout is returned when a flash operation does not complete in time
	ErrFlashTimeout = errors.New("flash operation timed out")

	// ErrClosed is returned when operations are performed on a closed store
	ErrClosed = errors.New("store is closed")

	// ErrStoreFailed is returned by every operation after a flash wait failed.
	// The store must be reopened once the device is idle.
	ErrStoreFailed = errors.New("store failed on a flash error, reopen required")
)

// errorKind names err for the stats collector
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNameTooLong), errors.Is(err, ErrEmptyName), errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrIDSpaceExhausted):
		return "id_space_exhausted"
	case errors.Is(err, ErrStoreFull):
		return "store_full"
	case errors.Is(err, ErrRecordTooLarge):
		return "record_too_large"
	case errors.Is(err, ErrInvalidHandle):
		return "invalid_handle"
	case errors.Is(err, ErrIDConflict):
		return "id_conflict"
	case errors.Is(err, ErrStoreFailed):
		return "store_failed"
	case errors.Is(err, ErrFlashTimeout):
		return "flash_timeout"
	case errors.Is(err, ErrFlashFault):
		return "flash_fault"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
