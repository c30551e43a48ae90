package render

import (
	"bytes"
	"strings"
	"testing"
)

func solidFrame(w, h int, r, g, b byte) Frame {
	f := NewFrame(w, h)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
	}
	return f
}

func TestScalarAndBatchedProduceIdenticalOutput(t *testing.T) {
	src := solidFrame(40, 20, 10, 200, 80)
	optsScalar := Options{Width: 30, Height: 10, Mode: ModeFG256}
	optsBatched := optsScalar
	optsBatched.Batched = true

	a, err := Render(src, optsScalar, nil)
	if err != nil {
		t.Fatalf("Render scalar: %v", err)
	}
	b, err := Render(src, optsBatched, nil)
	if err != nil {
		t.Fatalf("Render batched: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("scalar and batched paths diverged:\nscalar=%q\nbatched=%q", a, b)
	}
}

func TestMonoOutputHasNoEscapes(t *testing.T) {
	src := solidFrame(10, 10, 255, 255, 255)
	out, err := Render(src, Options{Width: 10, Height: 4, Mode: ModeMono}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if bytes.ContainsRune(out, 0x1b) {
		t.Fatalf("mono output should contain no ANSI escapes, got %q", out)
	}
}

func TestInvalidDimensions(t *testing.T) {
	src := solidFrame(4, 4, 1, 2, 3)
	if _, err := Render(src, Options{Width: 0, Height: 4}, nil); err != ErrInvalidDimensions {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestRenderIntoEnforcesBufferSize(t *testing.T) {
	src := solidFrame(20, 20, 1, 2, 3)
	opts := Options{Width: 20, Height: 20, Mode: ModeFGTrueColor}
	small := make([]byte, 4)
	if _, err := RenderInto(src, opts, small); err != ErrBufferOverflow {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
	big := make([]byte, MaxOutputSize(opts.Width, opts.Height))
	n, err := RenderInto(src, opts, big)
	if err != nil {
		t.Fatalf("RenderInto: %v", err)
	}
	if n == 0 || n > len(big) {
		t.Fatalf("unexpected written length %d", n)
	}
}

func TestLetterboxPadsWithBlankGlyph(t *testing.T) {
	// A very wide, short source letterboxed into a square target leaves
	// top/bottom bands black, which should render as the ramp's blank
	// glyph (space) in mono mode.
	src := solidFrame(100, 10, 255, 255, 255)
	out, err := Render(src, Options{Width: 20, Height: 20, Mode: ModeMono}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n"))
	if len(lines) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(lines))
	}
	firstLine := lines[0]
	for _, c := range firstLine {
		if c != ' ' {
			t.Fatalf("expected top letterbox row to be blank, got %q", firstLine)
		}
	}
}

func TestGlyphForLuminanceMonotonic(t *testing.T) {
	prev := 0
	for y := 0; y <= 255; y += 17 {
		g := GlyphForLuminance(byte(y), DefaultRamp)
		pos := strings.IndexByte(DefaultRamp, g)
		if y > 0 && pos < prev {
			t.Fatalf("expected non-decreasing glyph density with luminance")
		}
		prev = pos
	}
}

func TestRGBToXterm256GrayVsChromatic(t *testing.T) {
	grayIdx := RGBToXterm256(128, 128, 128)
	if grayIdx < 232 || grayIdx > 255 {
		t.Fatalf("expected a neutral gray pixel to map into the gray ramp, got %d", grayIdx)
	}
	redIdx := RGBToXterm256(255, 0, 0)
	if redIdx < 16 || redIdx > 231 {
		t.Fatalf("expected a saturated red pixel to map into the color cube, got %d", redIdx)
	}
}
