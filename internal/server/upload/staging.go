package upload

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// stagingTag prefixes every staged chunk so that decoding does not depend on the
// policy that was active when the chunk was written
type stagingTag uint8

const (
	tagNone stagingTag = 0
	tagLZ4  stagingTag = 1
	tagZstd stagingTag = 2
)

const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
	CompressionZstd = "zstd"
)

var errIncompressible = errors.New("incompressible")

type stagingCodec struct {
	tag     stagingTag
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newStagingCodec(compression string) (*stagingCodec, error) {
	var tag stagingTag
	switch compression {
	case "", CompressionNone:
		tag = tagNone
	case CompressionLZ4:
		tag = tagLZ4
	case CompressionZstd:
		tag = tagZstd
	default:
		return nil, fmt.Errorf("unknown staging compression %q", compression)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &stagingCodec{tag: tag, encoder: encoder, decoder: decoder}, nil
}

func (c *stagingCodec) encode(data []byte) []byte {
	var (
		payload []byte
		err     error
	)
	switch c.tag {
	case tagLZ4:
		payload, err = compressLZ4(data)
	case tagZstd:
		payload = c.encoder.EncodeAll(data, nil)
		if len(payload) >= len(data) {
			err = errIncompressible
		}
	default:
		err = errIncompressible
	}

	if err != nil {
		return frame(tagNone, data)
	}
	return frame(c.tag, payload)
}

func (c *stagingCodec) decode(stored []byte, size int64) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("staged chunk: missing header")
	}
	tag, payload := stagingTag(stored[0]), stored[1:]

	switch tag {
	case tagNone:
		if int64(len(payload)) != size {
			return nil, fmt.Errorf("staged chunk: size %d, expected %d", len(payload), size)
		}
		return payload, nil

	case tagLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if int64(n) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil

	case tagZstd:
		out, err := c.decoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if int64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("staged chunk: unknown tag %d", tag)
	}
}

func (c *stagingCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// 0 means lz4 gave up
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func frame(tag stagingTag, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(tag)
	copy(out[1:], payload)
	return out
}
