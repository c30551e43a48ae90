package render

// cubeBinToLevel maps a pixel channel's 3-bit bin (value>>5, 0..7) to one
// of the xterm 256-color cube's 6 levels. This is the "small precomputed
// LUT" the renderer uses for fast 256-color quantization.
var cubeBinToLevel = [8]int{0, 1, 2, 2, 3, 3, 4, 5}

// cubeLevelValue are the intensity values xterm's 6x6x6 color cube uses
// for each of its 6 steps per channel.
var cubeLevelValue = [6]byte{0, 95, 135, 175, 215, 255}

// grayNearThreshold bounds max-min channel spread below which a pixel is
// treated as near-gray and routed to the finer 24-step gray ramp instead
// of the coarser color cube.
const grayNearThreshold = 10

// RGBToXterm256 quantizes an RGB24 pixel to an xterm 256-color palette
// index: the 6x6x6 color cube (16-231) for chromatic pixels, or the
// 24-step gray ramp (232-255) for near-gray pixels.
func RGBToXterm256(r, g, b byte) int {
	maxc, minc := maxByte3(r, g, b), minByte3(r, g, b)
	if int(maxc)-int(minc) < grayNearThreshold {
		y := (int(r) + int(g) + int(b)) / 3
		idx := (y - 8) / 10
		if idx < 0 {
			idx = 0
		}
		if idx > 23 {
			idx = 23
		}
		return 232 + idx
	}
	ri := cubeBinToLevel[r>>5]
	gi := cubeBinToLevel[g>>5]
	bi := cubeBinToLevel[b>>5]
	return 16 + 36*ri + 6*gi + bi
}

func maxByte3(a, b, c byte) byte {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func minByte3(a, b, c byte) byte {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Luminance computes the integer-scaled ITU-R luminance of an RGB24
// pixel: Y = 0.299R + 0.587G + 0.114B, fixed-point with a 1000 scale.
func Luminance(r, g, b byte) byte {
	y := (299*int(r) + 587*int(g) + 114*int(b)) / 1000
	if y > 255 {
		y = 255
	}
	return byte(y)
}

// GlyphForLuminance maps a luminance value into ramp, a caller-supplied
// (or DefaultRamp) gradient from dark to light.
func GlyphForLuminance(y byte, ramp string) byte {
	if len(ramp) == 0 {
		ramp = DefaultRamp
	}
	idx := int(y) * (len(ramp) - 1) / 255
	return ramp[idx]
}
