package audio

import "math"

// silenceFloorDB is the envelope level below which a source is treated as
// inactive (spec: "a source is active if envelope >= -70 dB").
const silenceFloorDB = -70.0

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func linearToDB(lin float64) float64 {
	if lin <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(lin)
}

// onePole is an attack/release envelope follower: it tracks the input with
// a fast coefficient while rising and a slow one while falling.
type onePole struct {
	attackCoeff  float64
	releaseCoeff float64
	value        float64
}

func newOnePole(sampleRate int, attack, release float64) *onePole {
	return &onePole{
		attackCoeff:  poleCoeff(sampleRate, attack),
		releaseCoeff: poleCoeff(sampleRate, release),
	}
}

func poleCoeff(sampleRate int, seconds float64) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (seconds * float64(sampleRate)))
}

// Step advances the follower by one sample of the (already rectified)
// input magnitude and returns the new envelope value.
func (p *onePole) Step(input float64) float64 {
	coeff := p.releaseCoeff
	if input > p.value {
		coeff = p.attackCoeff
	}
	p.value = coeff*p.value + (1-coeff)*input
	return p.value
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// softKneeGainReductionDB returns the gain reduction (a positive number of dB to
// subtract) for an input level of levelDB against a soft-knee compressor
// with the given threshold, ratio and knee width, all in dB.
func softKneeGainReductionDB(levelDB, thresholdDB, ratio, kneeDB float64) float64 {
	lowerKnee := thresholdDB - kneeDB/2
	upperKnee := thresholdDB + kneeDB/2
	switch {
	case levelDB <= lowerKnee:
		return 0
	case levelDB >= upperKnee:
		return (levelDB - thresholdDB) * (1 - 1/ratio)
	default:
		x := levelDB - lowerKnee
		return (1 - 1/ratio) * (x * x) / (2 * kneeDB)
	}
}
