// Package audio implements the server's N-way PCM mixer: per-source
// envelope following, leader-relative ducking, crowd-scaling gain and a
// soft-knee bus compressor, per output sample, in one pass over sources.
package audio

import "math"

// Config holds the mixer's tunable defaults, all matching the values the
// algorithm is specified against.
type Config struct {
	SampleRate int

	EnvelopeAttackSeconds  float64
	EnvelopeReleaseSeconds float64

	LeaderMarginDB float64
	DuckDB         float64
	DuckAttackSec  float64
	DuckReleaseSec float64

	BaseGain  float64
	CrowdAlpha float64

	CompressorThresholdDB float64
	CompressorRatio       float64
	CompressorKneeDB      float64
	CompressorAttackSec   float64
	CompressorReleaseSec  float64
	CompressorMakeupDB    float64
}

// DefaultConfig returns the mixer defaults named by the mixing algorithm.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:             sampleRate,
		EnvelopeAttackSeconds:  0.012,
		EnvelopeReleaseSeconds: 0.160,
		LeaderMarginDB:         6,
		DuckDB:                 -12,
		DuckAttackSec:          0.012,
		DuckReleaseSec:         0.160,
		BaseGain:               1.0,
		CrowdAlpha:             0.5,
		CompressorThresholdDB:  -12,
		CompressorRatio:        4,
		CompressorKneeDB:       6,
		CompressorAttackSec:    0.008,
		CompressorReleaseSec:   0.120,
		CompressorMakeupDB:     3,
	}
}

type sourceState struct {
	pending   []float32
	envelope  *onePole
	duckGain  *onePole // smoothed linear duck multiplier, 1.0 = no duck
	processed []float32
}

type listenerState struct {
	levelFollower *onePole
}

// Mixer combines multiple mono PCM sources into a per-listener mix. It is
// driven by a fixed-cadence caller: SetSource deposits each source's
// latest batch, Tick advances the shared envelope/duck state once per
// source, and MixFor composes the listener-specific output (excluding the
// listener's own source, if any, to avoid echo).
type Mixer struct {
	cfg     Config
	sources map[uint32]*sourceState
	listeners map[uint32]*listenerState
}

// NewMixer constructs a Mixer with cfg.
func NewMixer(cfg Config) *Mixer {
	return &Mixer{
		cfg:       cfg,
		sources:   make(map[uint32]*sourceState),
		listeners: make(map[uint32]*listenerState),
	}
}

// SetSource deposits sourceID's latest audio batch, replacing any batch
// not yet consumed by Tick (last value wins; there is no audio queue in
// front of the mixer, so it holds at most one pending batch per source).
func (m *Mixer) SetSource(sourceID uint32, pcm []float32) {
	st, ok := m.sources[sourceID]
	if !ok {
		st = &sourceState{
			envelope: newOnePole(m.cfg.SampleRate, m.cfg.EnvelopeAttackSeconds, m.cfg.EnvelopeReleaseSeconds),
			duckGain: newOnePole(m.cfg.SampleRate, m.cfg.DuckAttackSec, m.cfg.DuckReleaseSec),
		}
		st.duckGain.value = 1.0
		m.sources[sourceID] = st
	}
	st.pending = pcm
}

// RemoveSource drops a source's state entirely (the client left or its
// audio lane was closed).
func (m *Mixer) RemoveSource(sourceID uint32) {
	delete(m.sources, sourceID)
}

// ActiveSources reports how many sources currently have envelope at or
// above the silence floor.
func (m *Mixer) ActiveSources() int {
	n := 0
	for _, st := range m.sources {
		if linearToDB(st.envelope.value) >= silenceFloorDB {
			n++
		}
	}
	return n
}

// Tick advances every source's envelope and duck-gain state by numSamples
// and produces each source's post-duck processed signal, consuming
// (clearing) pending input. Sources with no pending batch this tick are
// treated as silence.
func (m *Mixer) Tick(numSamples int) {
	loudest := 0.0
	envelopes := make(map[uint32]float64, len(m.sources))
	for id, st := range m.sources {
		in := st.pending
		st.processed = make([]float32, numSamples)
		env := st.envelope.value
		for i := 0; i < numSamples; i++ {
			var x float64
			if i < len(in) {
				x = float64(in[i])
			}
			env = st.envelope.Step(abs(x))
			st.processed[i] = float32(x) // duck gain applied in the second pass below
		}
		envelopes[id] = env
		if env > loudest {
			loudest = env
		}
		st.pending = nil
	}

	leaderFloor := loudest * dbToLinear(-m.cfg.LeaderMarginDB)
	duckMultiplier := dbToLinear(m.cfg.DuckDB)

	for id, st := range m.sources {
		isActive := linearToDB(envelopes[id]) >= silenceFloorDB
		isLeader := !isActive || envelopes[id] >= leaderFloor
		target := 1.0
		if !isLeader {
			target = duckMultiplier
		}
		// Leader status is classified once per tick; advance the smoothed
		// duck gain toward that target across the tick's sample count and
		// apply the settled value uniformly.
		for i := 0; i < len(st.processed); i++ {
			st.duckGain.Step(target)
		}
		gain := float32(st.duckGain.value)
		for i := range st.processed {
			st.processed[i] *= gain
		}
	}
}

// MixFor sums every active source's processed signal except excludeID (if
// present), applies the crowd-scaling gain and the bus compressor, and
// clamps to [-1, 1]. Pass excludeID = 0 (or any id with no source) to
// include every source.
func (m *Mixer) MixFor(listenerID, excludeID uint32, numSamples int) []float32 {
	out := make([]float32, numSamples)
	activeCount := m.ActiveSources()
	if activeCount == 0 {
		return out
	}
	crowdGain := m.cfg.BaseGain * math.Pow(float64(activeCount), -m.cfg.CrowdAlpha)

	for id, st := range m.sources {
		if id == excludeID || linearToDB(st.envelope.value) < silenceFloorDB {
			continue
		}
		for i := 0; i < numSamples && i < len(st.processed); i++ {
			out[i] += st.processed[i]
		}
	}
	for i := range out {
		out[i] *= float32(crowdGain)
	}

	lf, ok := m.listeners[listenerID]
	if !ok {
		lf = &listenerState{levelFollower: newOnePole(m.cfg.SampleRate, m.cfg.CompressorAttackSec, m.cfg.CompressorReleaseSec)}
		m.listeners[listenerID] = lf
	}
	for i, x := range out {
		level := lf.levelFollower.Step(abs(float64(x)))
		levelDB := linearToDB(level)
		reductionDB := softKneeGainReductionDB(levelDB, m.cfg.CompressorThresholdDB, m.cfg.CompressorRatio, m.cfg.CompressorKneeDB)
		gainDB := -reductionDB + m.cfg.CompressorMakeupDB
		out[i] = float32(clamp(float64(x)*dbToLinear(gainDB), -1, 1))
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
