// Package render implements the RGB24-to-ASCII-art pipeline: bilinear
// resize with letterboxing, luminance-to-glyph mapping, and ANSI SGR
// color output with run-length encoding.
package render

import (
	"errors"
	"fmt"
)

// DefaultRamp is the default dark-to-light glyph gradient.
const DefaultRamp = "   ...',:;clodxkO0KXNWM"

// Mode selects how (or whether) cells are colored.
type Mode int

const (
	ModeMono Mode = iota
	ModeFGTrueColor
	ModeBGTrueColor
	ModeFG256
	ModeBG256
)

// Options configures one Render call.
type Options struct {
	Width, Height int
	Mode          Mode
	Ramp          string
	Stretch       bool
	// Batched selects the width-batched fast path. It must (and does)
	// produce byte-identical output to the scalar path; the only
	// difference is the loop's iteration grouping.
	Batched bool
}

var (
	// ErrInvalidDimensions signals a non-positive width or height.
	ErrInvalidDimensions = errors.New("render: invalid dimensions")
	// ErrBufferOverflow signals dst was too small for MaxOutputSize.
	ErrBufferOverflow = errors.New("render: output buffer too small")
)

// maxSGRBytesPerCell bounds the longest possible per-cell SGR escape this
// package emits: "\x1b[38;2;255;255;255m" plus one glyph byte.
const maxSGRBytesPerCell = 20

// trailerBytes bounds the per-row reset sequence plus newline.
const trailerBytes = len("\x1b[0m") + 1

// MaxOutputSize returns the smallest buffer guaranteed to hold a render of
// w x h cells, per the pipeline's documented bound.
func MaxOutputSize(w, h int) int {
	return h * (w*maxSGRBytesPerCell + trailerBytes)
}

const resetSGR = "\x1b[0m"

// Render resizes src to opts.Width x opts.Height, maps it to glyphs and
// (if opts.Mode != ModeMono) ANSI colors with run-length-encoded SGR
// changes, and appends the result to dst. It returns dst extended with the
// rendered bytes.
func Render(src Frame, opts Options, dst []byte) ([]byte, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return dst, ErrInvalidDimensions
	}
	ramp := opts.Ramp
	if ramp == "" {
		ramp = DefaultRamp
	}
	resized := Resize(src, opts.Width, opts.Height, opts.Stretch)

	for y := 0; y < opts.Height; y++ {
		dst = renderRow(resized, y, opts, ramp, dst)
	}
	return dst, nil
}

// RenderInto is like Render but enforces a caller-provided fixed-size
// buffer and fails with ErrBufferOverflow rather than growing it, for
// callers that pre-size with MaxOutputSize.
func RenderInto(src Frame, opts Options, dst []byte) (int, error) {
	need := MaxOutputSize(opts.Width, opts.Height)
	if len(dst) < need {
		return 0, ErrBufferOverflow
	}
	out, err := Render(src, opts, dst[:0])
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func renderRow(f Frame, y int, opts Options, ramp string, dst []byte) []byte {
	prevKey := -1 // forced mismatch: every row starts without an active SGR
	width := f.Width

	emitCell := func(x int) {
		i := (y*width + x) * 3
		r, g, b := f.Pix[i], f.Pix[i+1], f.Pix[i+2]
		glyph := GlyphForLuminance(Luminance(r, g, b), ramp)
		if opts.Mode == ModeMono {
			dst = append(dst, glyph)
			return
		}
		key, sgr := sgrFor(opts.Mode, r, g, b)
		if key != prevKey {
			dst = append(dst, sgr...)
			prevKey = key
		}
		dst = append(dst, glyph)
	}

	if opts.Batched {
		x := 0
		for ; x+8 <= width; x += 8 {
			for i := 0; i < 8; i++ {
				emitCell(x + i)
			}
		}
		for ; x < width; x++ {
			emitCell(x)
		}
	} else {
		for x := 0; x < width; x++ {
			emitCell(x)
		}
	}

	if opts.Mode != ModeMono {
		dst = append(dst, resetSGR...)
	}
	dst = append(dst, '\n')
	return dst
}

// sgrFor returns a stable dedup key and the SGR escape sequence for pixel
// (r,g,b) under mode.
func sgrFor(mode Mode, r, g, b byte) (int, string) {
	switch mode {
	case ModeFGTrueColor:
		return truecolorKey(r, g, b), fmt.Sprintf("\x1b[38;2;%d;%d;%dm", r, g, b)
	case ModeBGTrueColor:
		return truecolorKey(r, g, b), fmt.Sprintf("\x1b[48;2;%d;%d;%dm", r, g, b)
	case ModeFG256:
		idx := RGBToXterm256(r, g, b)
		return idx, fmt.Sprintf("\x1b[38;5;%dm", idx)
	case ModeBG256:
		idx := RGBToXterm256(r, g, b)
		return idx + 1<<16, fmt.Sprintf("\x1b[48;5;%dm", idx)
	default:
		return 0, ""
	}
}

func truecolorKey(r, g, b byte) int {
	return int(r)<<16 | int(g)<<8 | int(b)
}
