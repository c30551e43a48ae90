package client

import (
	"testing"

	"github.com/asciichat/asciichat-go/internal/render"
)

func solidFrame(w, h int, r, g, b byte) render.Frame {
	f := render.NewFrame(w, h)
	for i := 0; i < w*h; i++ {
		f.Pix[i*3], f.Pix[i*3+1], f.Pix[i*3+2] = r, g, b
	}
	return f
}

func TestComposeLocalGridSingleSourcePassthrough(t *testing.T) {
	f := solidFrame(4, 4, 1, 2, 3)
	got := composeLocalGrid([]render.Frame{f}, 80, 24)
	if got.Width != 4 || got.Height != 4 {
		t.Fatalf("expected passthrough of the single source, got %dx%d", got.Width, got.Height)
	}
}

func TestComposeLocalGridArrangesIntoSmallestSquareGrid(t *testing.T) {
	sources := []render.Frame{
		solidFrame(10, 10, 255, 0, 0),
		solidFrame(10, 10, 0, 255, 0),
		solidFrame(10, 10, 0, 0, 255),
	}
	got := composeLocalGrid(sources, 60, 60)
	// ceil(sqrt(3)) == 2 cols, 2 rows.
	wantCellW, wantCellH := 60/2, 60/2
	if got.Width != wantCellW*2 || got.Height != wantCellH*2 {
		t.Fatalf("unexpected canvas size: %dx%d", got.Width, got.Height)
	}
}

func TestConfigRenderModeMapping(t *testing.T) {
	cases := map[string]render.Mode{
		"":      render.ModeMono,
		"mono":  render.ModeMono,
		"fg256": render.ModeFG256,
		"bg256": render.ModeBG256,
		"fg24":  render.ModeFGTrueColor,
		"bg24":  render.ModeBGTrueColor,
	}
	for mode, want := range cases {
		cfg := Config{ColorMode: mode}
		if got := cfg.renderMode(); got != want {
			t.Fatalf("mode %q: got %v want %v", mode, got, want)
		}
	}
}
