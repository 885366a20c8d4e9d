package image

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknownCodec is returned when an image names an unsupported compression codec
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrInvalidCompressedData is returned when the image body cannot be decompressed
	ErrInvalidCompressedData = errors.New("invalid compressed data")
)

// Codec identifies how the region bytes are compressed inside an image
type Codec uint32

const (
	CodecNone Codec = iota
	CodecZstd
	CodecSnappy
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("codec(%d)", uint32(c))
	}
}

// ParseCodec maps a codec name to a Codec
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "zstd", "":
		return CodecZstd, nil
	case "snappy":
		return CodecSnappy, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

// compressor holds reusable zstd state
type compressor struct {
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	mu sync.Mutex
}

func newCompressor() (*compressor, error) {
	zstdEncoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create ZSTD encoder: %w", err)
	}

	zstdDecoder, err := zstd.NewReader(nil)
	if err != nil {
		zstdEncoder.Close()
		return nil, fmt.Errorf("failed to create ZSTD decoder: %w", err)
	}

	return &compressor{
		zstdEncoder: zstdEncoder,
		zstdDecoder: zstdDecoder,
	}, nil
}

func (c *compressor) compress(data []byte, codec Codec) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch codec {
	case CodecNone:
		return data, nil
	case CodecZstd:
		return c.zstdEncoder.EncodeAll(data, nil), nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

func (c *compressor) decompress(data []byte, codec Codec) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch codec {
	case CodecNone:
		return data, nil
	case CodecZstd:
		result, err := c.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return result, nil
	case CodecSnappy:
		result, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

func (c *compressor) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.zstdEncoder.Close()
	c.zstdDecoder.Close()
}
