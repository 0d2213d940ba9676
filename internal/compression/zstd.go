// Package compression implements the optional row codec.
//
// An encoded value starts with one header byte: headerRaw for values kept
// as-is (small or incompressible), headerZstd for a zstd frame.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	headerRaw  byte = 0x00
	headerZstd byte = 0x01

	// values shorter than this are not worth a zstd frame
	minCompressSize = 128
)

var ErrCorrupt = errors.New("compression: corrupt value")

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

func NewCompressor(level int, enabled bool) (*Compressor, error) {
	if !enabled {
		return &Compressor{enabled: false}, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 2:
		encoderLevel = zstd.SpeedDefault
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	case 4:
		encoderLevel = zstd.SpeedBestCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
		enabled: true,
	}, nil
}

func (c *Compressor) Enabled() bool {
	return c != nil && c.enabled
}

// Encode returns the stored form of data. Disabled compressors return data unchanged.
func (c *Compressor) Encode(data []byte) []byte {
	if !c.Enabled() {
		return data
	}

	if len(data) >= minCompressSize {
		out := make([]byte, 1, len(data)+1)
		out[0] = headerZstd
		out = c.encoder.EncodeAll(data, out)
		if len(out) < len(data)+1 {
			return out
		}
	}

	out := make([]byte, len(data)+1)
	out[0] = headerRaw
	copy(out[1:], data)
	return out
}

// Decode reverses Encode.
func (c *Compressor) Decode(data []byte) ([]byte, error) {
	if !c.Enabled() {
		return data, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrCorrupt)
	}

	switch data[0] {
	case headerRaw:
		return data[1:], nil
	case headerZstd:
		out, err := c.decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown header %#x", ErrCorrupt, data[0])
	}
}

func (c *Compressor) Close() error {
	if c == nil {
		return nil
	}
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
