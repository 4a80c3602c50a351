package lists

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec names the compression applied to a stored payload.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecZstd   Codec = "zstd"
)

// ParseCodec accepts none, snappy or zstd. Empty means none.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecNone:
		return CodecNone, nil
	case CodecSnappy, CodecZstd:
		return Codec(s), nil
	}
	return CodecNone, errors.Newf("lists: unknown codec %q", s)
}

// compressor applies the configured codec on write. Reads honour whatever
// codec the record header names, so records survive a config change.
type compressor struct {
	codec    Codec
	minBytes int
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func newCompressor(codec Codec, minBytes int) (*compressor, error) {
	c := &compressor{codec: codec, minBytes: minBytes}
	var err error
	if codec == CodecZstd {
		if c.enc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1)); err != nil {
			return nil, errors.Wrap(err, "lists: zstd encoder")
		}
	}
	if c.dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1)); err != nil {
		return nil, errors.Wrap(err, "lists: zstd decoder")
	}
	return c, nil
}

func (c *compressor) compress(data []byte) (Codec, []byte) {
	if len(data) < c.minBytes {
		return CodecNone, data
	}
	switch c.codec {
	case CodecSnappy:
		return CodecSnappy, snappy.Encode(nil, data)
	case CodecZstd:
		return CodecZstd, c.enc.EncodeAll(data, nil)
	}
	return CodecNone, data
}

func (c *compressor) decompress(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return append([]byte(nil), payload...), nil
	case CodecSnappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, dataCorruption("lists: snappy payload: %v", err)
		}
		return out, nil
	case CodecZstd:
		out, err := c.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, dataCorruption("lists: zstd payload: %v", err)
		}
		return out, nil
	}
	return nil, dataCorruption("lists: unknown payload codec %q", codec)
}

func (c *compressor) close() {
	if c.enc != nil {
		_ = c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}
