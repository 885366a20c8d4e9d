// Package record defines the on-flash layout of a record header and the
// checksum protecting its payload. The layout is frozen: devices in the field
// hold data written with exactly these field widths and CRC parameters.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// Header layout
	// - id (1 byte)
	// - nid, bitwise complement of id (1 byte)
	// - name, NUL padded (25 bytes)
	// - padding (1 byte)
	// - length (4 bytes, little-endian)
	// - crc8 of the payload (1 byte)
	// - padding (3 bytes)
	HeaderSize = 36

	// MaxNameLength is the longest name that fits the name field with its terminator
	MaxNameLength = 24

	// WordSize is the flash programming granularity
	WordSize = 4

	// MinID and MaxID bound the id space. 0xFF is kept out of use so a torn
	// header whose nid never landed cannot pass for a written one.
	MinID = 1
	MaxID = 0xFE

	// Erased is the value of every byte of an erased flash page
	Erased = 0xFF

	offID       = 0
	offNID      = 1
	offName     = 2
	nameField   = MaxNameLength + 1
	offLength   = 28
	offChecksum = 32
)

var (
	ErrNameTooLong = errors.New("record name too long")
	ErrEmptyName   = errors.New("record name is empty")
	ErrInvalidName = errors.New("record name contains NUL")
	ErrShortHeader = errors.New("header data too small")
)

// Header is the fixed-size metadata written in front of every payload.
type Header struct {
	ID       uint8
	NID      uint8
	Name     string
	Length   uint32
	Checksum uint8
}

// NewHeader builds the header for a payload stored under name with the given id.
func NewHeader(id uint8, name string, payload []byte) (Header, error) {
	if err := ValidateName(name); err != nil {
		return Header{}, err
	}
	return Header{
		ID:       id,
		NID:      ^id,
		Name:     name,
		Length:   uint32(len(payload)),
		Checksum: Checksum(payload),
	}, nil
}

// ValidateName checks that name fits the header's name field.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, len(name), MaxNameLength)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return ErrInvalidName
	}
	return nil
}

// Present reports whether the slot holds a written header. Erased flash reads
// id = nid = 0xFF, which fails the complement check, so the same test marks
// the end of the log.
func (h Header) Present() bool {
	return h.ID&h.NID == 0
}

// Tombstone reports whether the header marks a deleted record.
func (h Header) Tombstone() bool {
	return h.Length == 0
}

// Span is the number of bytes the record occupies on flash, header included.
func (h Header) Span() uint32 {
	return HeaderSize + RoundUp4(h.Length)
}

// Verify reports whether payload matches the stored checksum.
func (h Header) Verify(payload []byte) bool {
	return uint32(len(payload)) == h.Length && Checksum(payload) == h.Checksum
}

// Encode serializes the header. Padding and the unused tail of the name
// field are zero, as the firmware has always written them.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)

	buf[offID] = h.ID
	buf[offNID] = h.NID
	copy(buf[offName:offName+MaxNameLength], h.Name)

	binary.LittleEndian.PutUint32(buf[offLength:offLength+4], h.Length)
	buf[offChecksum] = h.Checksum

	return buf
}

// Decode parses a header slot. It never fails on erased or garbage content;
// callers use Present to tell a written slot from an empty one.
func Decode(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, expected %d", ErrShortHeader, len(data), HeaderSize)
	}

	name := data[offName : offName+nameField]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}

	return Header{
		ID:       data[offID],
		NID:      data[offNID],
		Name:     string(name[:n]),
		Length:   binary.LittleEndian.Uint32(data[offLength : offLength+4]),
		Checksum: data[offChecksum],
	}, nil
}

// RoundUp4 rounds n up to the next multiple of the flash word size.
func RoundUp4(n uint32) uint32 {
	return (n + WordSize - 1) &^ (WordSize - 1)
}
