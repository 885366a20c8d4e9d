package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// FooterSize is the fixed size of the footer in bytes
	FooterSize = 56
	// FooterMagic marks the end of a flash image
	FooterMagic = uint64(0xF1A5_4B56_1A6E_F00D)
	// CurrentVersion is the current image format version
	CurrentVersion = uint32(1)
)

var (
	// ErrInvalidImage is returned when an image footer is missing or malformed
	ErrInvalidImage = errors.New("invalid flash image")

	// ErrChecksumMismatch is returned when image content does not match its digests
	ErrChecksumMismatch = errors.New("flash image checksum mismatch")
)

// Footer closes a flash image and describes the region it holds
type Footer struct {
	Magic     uint64
	Version   uint32
	Codec     Codec
	PageSize  uint32
	PageCount uint32
	Timestamp int64
	// BodySize is the length of the compressed region bytes
	BodySize uint64
	// RegionDigest is the xxhash of the uncompressed region
	RegionDigest uint64
	// Checksum covers every field above
	Checksum uint64
}

// Encode serializes the footer
func (f *Footer) Encode() []byte {
	result := make([]byte, FooterSize)

	binary.LittleEndian.PutUint64(result[0:8], f.Magic)
	binary.LittleEndian.PutUint32(result[8:12], f.Version)
	binary.LittleEndian.PutUint32(result[12:16], uint32(f.Codec))
	binary.LittleEndian.PutUint32(result[16:20], f.PageSize)
	binary.LittleEndian.PutUint32(result[20:24], f.PageCount)
	binary.LittleEndian.PutUint64(result[24:32], uint64(f.Timestamp))
	binary.LittleEndian.PutUint64(result[32:40], f.BodySize)
	binary.LittleEndian.PutUint64(result[40:48], f.RegionDigest)

	f.Checksum = xxhash.Sum64(result[:48])
	binary.LittleEndian.PutUint64(result[48:], f.Checksum)

	return result
}

// Created returns the time the image was taken
func (f *Footer) Created() time.Time {
	return time.Unix(0, f.Timestamp)
}

// DecodeFooter parses and verifies a footer
func DecodeFooter(data []byte) (*Footer, error) {
	if len(data) < FooterSize {
		return nil, fmt.Errorf("%w: footer is %d bytes, expected %d", ErrInvalidImage, len(data), FooterSize)
	}

	footer := &Footer{
		Magic:        binary.LittleEndian.Uint64(data[0:8]),
		Version:      binary.LittleEndian.Uint32(data[8:12]),
		Codec:        Codec(binary.LittleEndian.Uint32(data[12:16])),
		PageSize:     binary.LittleEndian.Uint32(data[16:20]),
		PageCount:    binary.LittleEndian.Uint32(data[20:24]),
		Timestamp:    int64(binary.LittleEndian.Uint64(data[24:32])),
		BodySize:     binary.LittleEndian.Uint64(data[32:40]),
		RegionDigest: binary.LittleEndian.Uint64(data[40:48]),
		Checksum:     binary.LittleEndian.Uint64(data[48:56]),
	}

	if footer.Magic != FooterMagic {
		return nil, fmt.Errorf("%w: magic %x, expected %x", ErrInvalidImage, footer.Magic, FooterMagic)
	}
	if footer.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidImage, footer.Version)
	}

	if expected := xxhash.Sum64(data[:48]); footer.Checksum != expected {
		return nil, fmt.Errorf("%w: footer has %x, calculated %x", ErrChecksumMismatch, footer.Checksum, expected)
	}

	return footer, nil
}
