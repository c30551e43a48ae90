package capture

import "testing"

func TestSyntheticVideoSourceProducesExpectedSize(t *testing.T) {
	src := NewSyntheticVideoSource(8, 4, 1000)
	if err := src.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	f, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Width != 8 || f.Height != 4 {
		t.Fatalf("unexpected dims: %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != 8*4*3 {
		t.Fatalf("unexpected payload size: %d", len(f.Pix))
	}
}

func TestSyntheticVideoSourceRejectsReadAfterClose(t *testing.T) {
	src := NewSyntheticVideoSource(2, 2, 1000)
	_ = src.Open()
	_ = src.Close()
	if _, err := src.ReadFrame(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSyntheticAudioSourceProducesRequestedLength(t *testing.T) {
	src := NewSyntheticAudioSource(48000)
	_ = src.Open()
	defer src.Close()

	samples, err := src.ReadSamples(960)
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if len(samples) != 960 {
		t.Fatalf("unexpected sample count: %d", len(samples))
	}
	for _, s := range samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample out of range: %v", s)
		}
	}
}
