// Package flash models a NOR flash region as seen by the record store: a
// fixed number of equally sized erase pages, programmed in words, where
// programming can only clear bits and every erase or program completes
// asynchronously.
package flash

import (
	"context"
	"errors"
	"fmt"
)

const (
	// WordSize is the program granularity in bytes
	WordSize = 4

	// ErasedByte is the value of every byte after an erase
	ErasedByte = 0xFF

	// DefaultPageSize is the erase page size of common NOR parts
	DefaultPageSize = 4096

	// DefaultPageCount is the number of pages the store rotates through
	DefaultPageCount = 3
)

var (
	ErrBusy             = errors.New("flash operation already in progress")
	ErrUnaligned        = errors.New("flash access not word aligned")
	ErrOutOfRange       = errors.New("flash access out of range")
	ErrProgramConflict  = errors.New("program would set bits that are already cleared")
	ErrTimeout          = errors.New("flash operation did not complete")
	ErrPowerLoss        = errors.New("simulated power loss")
	ErrGeometryMismatch = errors.New("flash medium does not match geometry")
	ErrClosed           = errors.New("flash device is closed")
)

// Geometry describes the layout of a flash region.
type Geometry struct {
	PageSize  uint32
	PageCount int
}

// Size is the total number of bytes in the region.
func (g Geometry) Size() int64 {
	return int64(g.PageSize) * int64(g.PageCount)
}

// PageBase returns the region-relative address of the first byte of page.
func (g Geometry) PageBase(page int) uint32 {
	return uint32(page) * g.PageSize
}

// Validate checks that the geometry can be used by a controller.
func (g Geometry) Validate() error {
	if g.PageCount <= 0 {
		return fmt.Errorf("%w: page count must be positive", ErrGeometryMismatch)
	}
	if g.PageSize == 0 || g.PageSize%WordSize != 0 {
		return fmt.Errorf("%w: page size %d is not a positive multiple of %d", ErrGeometryMismatch, g.PageSize, WordSize)
	}
	return nil
}

// Device is the capability the store needs from flash hardware. Erase and
// Program only start an operation; the caller must Wait for its completion
// before issuing the next one. Addresses are relative to the region start.
type Device interface {
	// Geometry returns the page layout of the region
	Geometry() Geometry

	// ReadAt copies len(p) bytes starting at addr into p
	ReadAt(p []byte, addr uint32) error

	// Erase starts erasing page
	Erase(page int) error

	// Program starts programming data at addr
	Program(addr uint32, data []byte) error

	// Busy reports whether an operation is outstanding
	Busy() bool

	// Wait blocks until the outstanding operation completes and returns its result
	Wait(ctx context.Context) error
}

// IsErased reports whether every byte of data reads as erased flash.
func IsErased(data []byte) bool {
	for _, b := range data {
		if b != ErasedByte {
			return false
		}
	}
	return true
}
