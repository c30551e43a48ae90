package audio

import (
	"math"
	"testing"
)

func TestMixFor_SingleSourceBounded(t *testing.T) {
	m := NewMixer(DefaultConfig(48000))
	const n = 480
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = 0.8
	}
	m.SetSource(1, pcm)
	m.Tick(n)

	out := m.MixFor(99, 0, n)
	for i, v := range out {
		if v < -1 || v > 1 {
			t.Fatalf("sample %d out of [-1,1]: %v", i, v)
		}
	}
}

func TestMixFor_ExcludesOwnSource(t *testing.T) {
	m := NewMixer(DefaultConfig(48000))
	const n = 240
	loud := make([]float32, n)
	for i := range loud {
		loud[i] = 0.9
	}
	m.SetSource(1, loud)
	m.Tick(n)

	self := m.MixFor(1, 1, n)
	for i, v := range self {
		if v != 0 {
			t.Fatalf("expected silence when listener excludes their only source, got %v at %d", v, i)
		}
	}

	other := m.MixFor(2, 2, n)
	nonZero := false
	for _, v := range other {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("expected a listener who isn't the source to hear it")
	}
}

func TestMixFor_SilenceWithNoSources(t *testing.T) {
	m := NewMixer(DefaultConfig(48000))
	out := m.MixFor(1, 0, 64)
	for _, v := range out {
		if v != 0 {
			t.Fatalf("expected silence with no active sources, got %v", v)
		}
	}
}

func TestDuckingAttenuatesQuieterSource(t *testing.T) {
	m := NewMixer(DefaultConfig(48000))
	const n = 48000 // 1s, enough for the envelope/duck followers to settle
	loud := make([]float32, n)
	quiet := make([]float32, n)
	for i := range loud {
		loud[i] = 0.9
		quiet[i] = 0.05
	}
	m.SetSource(1, loud)
	m.SetSource(2, quiet)
	m.Tick(n)

	quietProcessedRMS := rms(m.sources[2].processed)
	quietInputRMS := rms(quiet)
	if quietProcessedRMS >= quietInputRMS {
		t.Fatalf("expected non-leader source to be attenuated by ducking: in=%v out=%v", quietInputRMS, quietProcessedRMS)
	}
}

func rms(xs []float32) float64 {
	var sum float64
	for _, x := range xs {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum / float64(len(xs)))
}
