// Package capture defines the client's platform capability boundary for
// pulling raw video and audio samples: a small, capability-sized
// interface per external device, plus a synthetic implementation used by
// tests and snapshot_mode demos where no real camera/microphone is
// available.
package capture

import (
	"errors"
	"math"
	"time"
)

// ErrDeviceUnavailable signals a platform video or audio device could not
// be opened (exit code 5 per the CLI's external-interface contract).
var ErrDeviceUnavailable = errors.New("capture: device unavailable")

// ErrClosed is returned by ReadFrame/ReadSamples once the source has been
// closed.
var ErrClosed = errors.New("capture: source closed")

// VideoFrame is one RGB24 frame pulled from a video source, tightly
// packed row-major with no padding between rows.
type VideoFrame struct {
	Width, Height int
	Pix           []byte
	PtsNS         int64
}

// VideoSource is the platform webcam abstraction: Open acquires the
// device, ReadFrame blocks until the next frame is available at the
// device's native rate, Close releases it.
type VideoSource interface {
	Open() error
	ReadFrame() (VideoFrame, error)
	Close() error
}

// AudioSource is the platform microphone abstraction: ReadSamples blocks
// until n mono float32 samples at the source's sample rate are ready.
type AudioSource interface {
	Open() error
	ReadSamples(n int) ([]float32, error)
	SampleRate() int
	Close() error
}

// AudioSink is the platform speaker abstraction: PlaySamples enqueues mono
// float32 samples at the sink's configured rate for playback.
type AudioSink interface {
	PlaySamples(pcm []float32) error
	Close() error
}

// DiscardAudioSink implements AudioSink by dropping every sample,
// for tests and headless snapshot_mode runs with no speaker.
type DiscardAudioSink struct{}

func (DiscardAudioSink) PlaySamples(pcm []float32) error { return nil }
func (DiscardAudioSink) Close() error                    { return nil }

// SyntheticVideoSource generates deterministic animated test frames
// (a moving gradient bar) at a fixed cadence, for tests and
// snapshot_mode demos where no webcam is present.
type SyntheticVideoSource struct {
	Width, Height int
	FPS           int

	closed bool
	frame  int64
	start  time.Time
}

// NewSyntheticVideoSource constructs a synthetic video source of the
// given size and frame rate.
func NewSyntheticVideoSource(width, height, fps int) *SyntheticVideoSource {
	if fps <= 0 {
		fps = 30
	}
	return &SyntheticVideoSource{Width: width, Height: height, FPS: fps}
}

func (s *SyntheticVideoSource) Open() error {
	s.start = time.Now()
	s.closed = false
	s.frame = 0
	return nil
}

func (s *SyntheticVideoSource) ReadFrame() (VideoFrame, error) {
	if s.closed {
		return VideoFrame{}, ErrClosed
	}
	period := time.Second / time.Duration(s.FPS)
	deadline := s.start.Add(time.Duration(s.frame+1) * period)
	if d := time.Until(deadline); d > 0 {
		time.Sleep(d)
	}
	pix := make([]byte, s.Width*s.Height*3)
	phase := byte(s.frame % 256)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			i := (y*s.Width + x) * 3
			pix[i] = byte(x*255/maxInt(s.Width-1, 1)) + phase
			pix[i+1] = byte(y*255/maxInt(s.Height-1, 1))
			pix[i+2] = phase
		}
	}
	f := VideoFrame{Width: s.Width, Height: s.Height, Pix: pix, PtsNS: time.Since(s.start).Nanoseconds()}
	s.frame++
	return f, nil
}

func (s *SyntheticVideoSource) Close() error {
	s.closed = true
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SyntheticAudioSource generates a deterministic sine tone, for tests and
// snapshot_mode demos where no microphone is present.
type SyntheticAudioSource struct {
	Rate      int
	ToneHz    float64
	Amplitude float64

	closed bool
	sample int64
}

// NewSyntheticAudioSource constructs a synthetic audio source at the
// given sample rate.
func NewSyntheticAudioSource(rate int) *SyntheticAudioSource {
	return &SyntheticAudioSource{Rate: rate, ToneHz: 440, Amplitude: 0.2}
}

func (s *SyntheticAudioSource) Open() error {
	s.closed = false
	s.sample = 0
	return nil
}

func (s *SyntheticAudioSource) SampleRate() int { return s.Rate }

func (s *SyntheticAudioSource) ReadSamples(n int) ([]float32, error) {
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		t := float64(s.sample+int64(i)) / float64(s.Rate)
		out[i] = float32(s.Amplitude * math.Sin(2*math.Pi*s.ToneHz*t))
	}
	s.sample += int64(n)
	return out, nil
}

func (s *SyntheticAudioSource) Close() error {
	s.closed = true
	return nil
}
