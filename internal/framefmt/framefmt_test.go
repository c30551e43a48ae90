package framefmt

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{Width: 4, Height: 2, PixelFormat: PixelRGB24, PtsNS: 123456789, Payload: bytes.Repeat([]byte{1, 2, 3}, 8)}
	enc := EncodeFrame(f)
	got, err := DecodeFrame(enc)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.Width != f.Width || got.Height != f.Height || got.PixelFormat != f.PixelFormat || got.PtsNS != f.PtsNS {
		t.Fatalf("header mismatch: got %+v want %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeFrameRejectsTruncated(t *testing.T) {
	if _, err := DecodeFrame(make([]byte, 4)); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestAudioBatchRoundTrip(t *testing.T) {
	samples := []float32{0.1, -0.5, 0.75, 1.0}
	b := AudioBatch{SampleRate: 48000, Channels: 1, SampleFmt: SampleF32LE, FrameCount: len(samples), Payload: EncodePCMFloat32(samples)}
	enc := EncodeAudioBatch(b)
	got, err := DecodeAudioBatch(enc)
	if err != nil {
		t.Fatalf("DecodeAudioBatch: %v", err)
	}
	if got.SampleRate != b.SampleRate || got.Channels != b.Channels || got.FrameCount != b.FrameCount {
		t.Fatalf("header mismatch: got %+v want %+v", got, b)
	}
	gotSamples := PCMFloat32(got)
	for i, s := range samples {
		if gotSamples[i] != s {
			t.Fatalf("sample %d mismatch: got %v want %v", i, gotSamples[i], s)
		}
	}
}
