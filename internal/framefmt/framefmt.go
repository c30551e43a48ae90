// Package framefmt encodes and decodes the VIDEO_FRAME and AUDIO_BATCH
// payload bodies: a small fixed header (big-endian, matching the wire
// package's convention) followed by the raw sample/pixel payload.
package framefmt

import (
	"errors"
	"math"

	"github.com/asciichat/asciichat-go/internal/bin"
)

// PixelFormat is the closed set of pixel encodings a Frame payload may carry.
type PixelFormat uint8

const (
	PixelRGB24 PixelFormat = iota
	PixelYUV420P
)

// SampleFormat is the closed set of PCM sample encodings an AudioBatch
// payload may carry.
type SampleFormat uint8

const (
	SampleF32LE SampleFormat = iota
	SampleS16LE
)

// ErrTruncated signals a payload shorter than its declared header or body.
var ErrTruncated = errors.New("framefmt: truncated payload")

// frameHeaderLen is width(4) height(4) pixel_format(1) reserved(3) pts_ns(8).
const frameHeaderLen = 20

// Frame is the decoded form of a VIDEO_FRAME packet payload.
type Frame struct {
	Width, Height int
	PixelFormat   PixelFormat
	PtsNS         int64
	Payload       []byte
}

// EncodeFrame serializes f into a VIDEO_FRAME payload.
func EncodeFrame(f Frame) []byte {
	out := make([]byte, frameHeaderLen+len(f.Payload))
	bin.PutU32BE(out[0:4], uint32(f.Width))
	bin.PutU32BE(out[4:8], uint32(f.Height))
	out[8] = byte(f.PixelFormat)
	bin.PutU64BE(out[12:20], uint64(f.PtsNS))
	copy(out[frameHeaderLen:], f.Payload)
	return out
}

// DecodeFrame parses a VIDEO_FRAME payload produced by EncodeFrame.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < frameHeaderLen {
		return Frame{}, ErrTruncated
	}
	f := Frame{
		Width:       int(bin.U32BE(b[0:4])),
		Height:      int(bin.U32BE(b[4:8])),
		PixelFormat: PixelFormat(b[8]),
		PtsNS:       int64(bin.U64BE(b[12:20])),
	}
	f.Payload = append([]byte(nil), b[frameHeaderLen:]...)
	return f, nil
}

// audioHeaderLen is sample_rate(4) channels(1) sample_fmt(1) reserved(2) frame_count(4).
const audioHeaderLen = 12

// AudioBatch is the decoded form of an AUDIO_BATCH packet payload.
type AudioBatch struct {
	SampleRate int
	Channels   int
	SampleFmt  SampleFormat
	FrameCount int
	Payload    []byte
}

// EncodeAudioBatch serializes b into an AUDIO_BATCH payload.
func EncodeAudioBatch(b AudioBatch) []byte {
	out := make([]byte, audioHeaderLen+len(b.Payload))
	bin.PutU32BE(out[0:4], uint32(b.SampleRate))
	out[4] = byte(b.Channels)
	out[5] = byte(b.SampleFmt)
	bin.PutU32BE(out[8:12], uint32(b.FrameCount))
	copy(out[audioHeaderLen:], b.Payload)
	return out
}

// DecodeAudioBatch parses an AUDIO_BATCH payload produced by EncodeAudioBatch.
func DecodeAudioBatch(b []byte) (AudioBatch, error) {
	if len(b) < audioHeaderLen {
		return AudioBatch{}, ErrTruncated
	}
	a := AudioBatch{
		SampleRate: int(bin.U32BE(b[0:4])),
		Channels:   int(b[4]),
		SampleFmt:  SampleFormat(b[5]),
		FrameCount: int(bin.U32BE(b[8:12])),
	}
	a.Payload = append([]byte(nil), b[audioHeaderLen:]...)
	return a, nil
}

// PCMFloat32 reinterprets a f32le AudioBatch payload as a []float32 slice.
func PCMFloat32(a AudioBatch) []float32 {
	n := len(a.Payload) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := bin.U32BE(a.Payload[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// EncodePCMFloat32 packs samples into a big-endian f32le-labelled payload.
// The wire representation is big-endian regardless of the f32le sample
// format label, matching this codec's big-endian-everywhere convention.
func EncodePCMFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bin.PutU32BE(out[i*4:i*4+4], math.Float32bits(s))
	}
	return out
}
