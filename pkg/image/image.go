// Package image saves and restores whole flash regions. An image holds the
// compressed region bytes, one xxhash digest per page and a fixed footer, so
// a damaged page can be named before anything is written back to flash.
package image

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/cespare/xxhash/v2"
)

// Image is a decoded flash image
type Image struct {
	Footer  *Footer
	Region  []byte
	Digests []uint64
}

// Geometry returns the layout of the region held by the image
func (img *Image) Geometry() flash.Geometry {
	return flash.Geometry{PageSize: img.Footer.PageSize, PageCount: int(img.Footer.PageCount)}
}

// Page returns the bytes of one page
func (img *Image) Page(page int) []byte {
	base := img.Geometry().PageBase(page)
	return img.Region[base : base+img.Footer.PageSize]
}

// Export reads the whole region of dev and writes it to w as an image.
func Export(w io.Writer, dev flash.Device, codec Codec) (*Footer, error) {
	geom := dev.Geometry()
	region := make([]byte, geom.Size())
	if err := dev.ReadAt(region, 0); err != nil {
		return nil, fmt.Errorf("failed to read flash region: %w", err)
	}

	c, err := newCompressor()
	if err != nil {
		return nil, err
	}
	defer c.close()

	body, err := c.compress(region, codec)
	if err != nil {
		return nil, err
	}

	digests := make([]byte, 8*geom.PageCount)
	for page := 0; page < geom.PageCount; page++ {
		base := geom.PageBase(page)
		binary.LittleEndian.PutUint64(digests[8*page:], xxhash.Sum64(region[base:base+geom.PageSize]))
	}

	footer := &Footer{
		Magic:        FooterMagic,
		Version:      CurrentVersion,
		Codec:        codec,
		PageSize:     geom.PageSize,
		PageCount:    uint32(geom.PageCount),
		Timestamp:    time.Now().UnixNano(),
		BodySize:     uint64(len(body)),
		RegionDigest: xxhash.Sum64(region),
	}

	for _, part := range [][]byte{body, digests, footer.Encode()} {
		if _, err := w.Write(part); err != nil {
			return nil, fmt.Errorf("failed to write image: %w", err)
		}
	}
	return footer, nil
}

// Decode parses and verifies a complete image.
func Decode(data []byte) (*Image, error) {
	if len(data) < FooterSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a footer", ErrInvalidImage, len(data))
	}
	footer, err := DecodeFooter(data[len(data)-FooterSize:])
	if err != nil {
		return nil, err
	}

	geom := flash.Geometry{PageSize: footer.PageSize, PageCount: int(footer.PageCount)}
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	avail := uint64(len(data) - FooterSize)
	digestSize := 8 * uint64(footer.PageCount)
	// BodySize is untrusted and is bounded before any arithmetic
	if footer.BodySize > avail || avail-footer.BodySize != digestSize {
		return nil, fmt.Errorf("%w: body and digests take %d bytes, footer says body %d and %d page digests",
			ErrInvalidImage, avail, footer.BodySize, footer.PageCount)
	}

	c, err := newCompressor()
	if err != nil {
		return nil, err
	}
	defer c.close()

	body := data[:footer.BodySize]
	region, err := c.decompress(body, footer.Codec)
	if err != nil {
		return nil, err
	}
	if int64(len(region)) != geom.Size() {
		return nil, fmt.Errorf("%w: region is %d bytes, expected %d", ErrInvalidImage, len(region), geom.Size())
	}

	img := &Image{
		Footer:  footer,
		Region:  bytes.Clone(region),
		Digests: make([]uint64, footer.PageCount),
	}

	var damaged []int
	digests := data[footer.BodySize : footer.BodySize+digestSize]
	for page := range img.Digests {
		img.Digests[page] = binary.LittleEndian.Uint64(digests[8*page:])
		if xxhash.Sum64(img.Page(page)) != img.Digests[page] {
			damaged = append(damaged, page)
		}
	}
	if len(damaged) > 0 {
		return nil, fmt.Errorf("%w: pages %v", ErrChecksumMismatch, damaged)
	}
	if xxhash.Sum64(region) != footer.RegionDigest {
		return nil, fmt.Errorf("%w: region digest", ErrChecksumMismatch)
	}

	return img, nil
}

// Read decodes an image from r.
func Read(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Decode(data)
}

// Restore erases every page of dev and programs it with the image contents.
// Pages that are blank in the image are only erased. Any store open on dev
// must be reopened afterwards.
func Restore(ctx context.Context, img *Image, dev flash.Device) error {
	geom := dev.Geometry()
	if geom != img.Geometry() {
		return fmt.Errorf("%w: image is %d x %d bytes, device is %d x %d bytes", flash.ErrGeometryMismatch,
			img.Footer.PageCount, img.Footer.PageSize, geom.PageCount, geom.PageSize)
	}

	for page := 0; page < geom.PageCount; page++ {
		if err := dev.Erase(page); err != nil {
			return fmt.Errorf("failed to erase page %d: %w", page, err)
		}
		if err := dev.Wait(ctx); err != nil {
			return fmt.Errorf("failed to erase page %d: %w", page, err)
		}

		data := img.Page(page)
		if flash.IsErased(data) {
			continue
		}
		if err := dev.Program(geom.PageBase(page), data); err != nil {
			return fmt.Errorf("failed to program page %d: %w", page, err)
		}
		if err := dev.Wait(ctx); err != nil {
			return fmt.Errorf("failed to program page %d: %w", page, err)
		}
	}
	return nil
}

// Import reads an image from r and restores it onto dev.
func Import(ctx context.Context, r io.Reader, dev flash.Device) (*Footer, error) {
	img, err := Read(r)
	if err != nil {
		return nil, err
	}
	if err := Restore(ctx, img, dev); err != nil {
		return nil, err
	}
	return img.Footer, nil
}

// SaveFile exports dev to path, replacing any existing file atomically.
func SaveFile(path string, dev flash.Device, codec Codec) (*Footer, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image: %w", err)
	}
	tmpPath := tmp.Name()

	footer, err := Export(tmp, dev, codec)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename image: %w", err)
	}
	return footer, nil
}

// LoadFile imports the image at path onto dev.
func LoadFile(ctx context.Context, path string, dev flash.Device) (*Footer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return Import(ctx, f, dev)
}
