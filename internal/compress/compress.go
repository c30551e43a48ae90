// Package compress wraps a streaming dictionary codec for frame payloads.
// Payloads above a size threshold are compressed before encryption; the
// decompressor enforces an output-size cap to defeat zip-bomb inputs.
package compress

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Threshold is the minimum plaintext size worth attempting to compress.
// Payloads smaller than this are sent as-is; the caller leaves
// wire.FlagCompressed unset.
const Threshold = 512

// MaxExpansionRatio bounds decompressed size relative to the compressed
// input: output larger than len(input)*MaxExpansionRatio is rejected.
const MaxExpansionRatio = 16

// ErrOutputTooLarge signals the decompressor hit its output-size cap,
// indicating either a corrupt frame or a zip-bomb payload.
var ErrOutputTooLarge = errors.New("compress: decompressed output exceeds cap")

// Codec is a dictionary-seeded zstd encoder/decoder pair. A Codec is bound
// to a single connection's capture or render loop and must not be shared
// across goroutines.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New builds a Codec. dict may be nil for undictionaried operation, or a
// small trained sample of representative frame payloads to improve the
// compression ratio on short, highly structured frames.
func New(dict []byte) (*Codec, error) {
	var encOpts []zstd.EOption
	var decOpts []zstd.DOption
	if len(dict) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDict(dict))
		decOpts = append(decOpts, zstd.WithDecoderDicts(dict))
	}
	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Close releases the codec's background resources.
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// ShouldCompress reports whether plaintext is large enough to be worth
// compressing.
func ShouldCompress(plaintext []byte) bool {
	return len(plaintext) >= Threshold
}

// Compress returns the zstd-compressed form of plaintext.
func (c *Codec) Compress(plaintext []byte) []byte {
	return c.enc.EncodeAll(plaintext, nil)
}

// Decompress inflates compressed, refusing to produce more than
// len(compressed)*MaxExpansionRatio bytes, further capped at maxOutput.
func (c *Codec) Decompress(compressed []byte, maxOutput int) ([]byte, error) {
	limit := len(compressed) * MaxExpansionRatio
	if maxOutput > 0 && maxOutput < limit {
		limit = maxOutput
	}
	if limit <= 0 {
		limit = maxOutput
	}

	if err := c.dec.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, err
	}

	limited := io.LimitReader(c.dec, int64(limit)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrOutputTooLarge
	}
	return out, nil
}
