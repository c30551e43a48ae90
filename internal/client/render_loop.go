package client

import (
	"math"
	"sort"
	"time"

	"github.com/asciichat/asciichat-go/internal/render"
)

// homeAndClear parks the cursor at the origin and erases to end of
// screen, avoiding full-screen clears that would cause flicker.
const homeAndClear = "\x1b[H\x1b[0J"

// renderLoop composes the locally-visible grid from the peer frame cache
// and paints the terminal at cfg.RenderFPS, or once in SnapshotMode.
func (c *Client) renderLoop() {
	defer c.wg.Done()
	fps := c.cfg.renderFPS()
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()

	for {
		c.renderTick()
		if c.cfg.SnapshotMode {
			return
		}
		select {
		case <-c.stopCh:
			return
		case <-t.C:
		}
	}
}

func (c *Client) renderTick() {
	c.framesMu.Lock()
	ids := append([]uint32(nil), c.order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sources := make([]render.Frame, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, c.frames[id])
	}
	c.framesMu.Unlock()

	if c.cfg.Output == nil || len(sources) == 0 {
		return
	}

	w, h := c.cfg.Width, c.cfg.Height
	if w <= 0 {
		w = 80
	}
	if h <= 0 {
		h = 24
	}

	canvas := composeLocalGrid(sources, w, h)
	buf := make([]byte, 0, render.MaxOutputSize(w, h)+len(homeAndClear))
	buf = append(buf, homeAndClear...)
	out, err := render.Render(canvas, render.Options{Width: w, Height: h, Mode: c.cfg.renderMode(), Batched: true}, buf)
	if err != nil {
		return
	}
	_, _ = c.cfg.Output.Write(out)
}

// composeLocalGrid arranges sources into the smallest grid with
// cols*rows >= len(sources), cols = ceil(sqrt(n)), matching the
// server-composed grid's deterministic layout, then letterboxes each
// source into its cell at the target canvas's per-cell pixel size.
func composeLocalGrid(sources []render.Frame, canvasW, canvasH int) render.Frame {
	if len(sources) == 1 {
		return sources[0]
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(sources)))))
	if cols < 1 {
		cols = 1
	}
	rows := (len(sources) + cols - 1) / cols
	cellW, cellH := canvasW/cols, canvasH/rows
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}
	canvas := render.NewFrame(cellW*cols, cellH*rows)
	for i, src := range sources {
		cell := render.Resize(src, cellW, cellH, false)
		blitFrame(canvas, cell, (i%cols)*cellW, (i/cols)*cellH)
	}
	return canvas
}

func blitFrame(dst, src render.Frame, offX, offY int) {
	for y := 0; y < src.Height; y++ {
		dy := offY + y
		if dy < 0 || dy >= dst.Height {
			continue
		}
		for x := 0; x < src.Width; x++ {
			dx := offX + x
			if dx < 0 || dx >= dst.Width {
				continue
			}
			si := (y*src.Width + x) * 3
			di := (dy*dst.Width + dx) * 3
			dst.Pix[di], dst.Pix[di+1], dst.Pix[di+2] = src.Pix[si], src.Pix[si+1], src.Pix[si+2]
		}
	}
}
