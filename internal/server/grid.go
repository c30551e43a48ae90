package server

import (
	"math"
	"sort"
	"time"

	"github.com/asciichat/asciichat-go/internal/framefmt"
	"github.com/asciichat/asciichat-go/internal/registry"
	"github.com/asciichat/asciichat-go/internal/render"
	"github.com/asciichat/asciichat-go/internal/wire"
	"github.com/asciichat/asciichat-go/observability"
)

// gridLoop runs the server-composed grid render task at cfg.GridFPS: for
// every active viewer it composes one RGB24 canvas from every other
// participant's latest decoded frame, letterboxed per cell, and enqueues
// it as a VIDEO_FRAME. The client still applies its own ASCII render
// pipeline to whatever it receives, so this never depends on a viewer's
// terminal size.
func (s *Server) gridLoop() {
	defer s.wg.Done()
	fps := s.cfg.GridFPS
	if fps <= 0 {
		fps = 30
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.composeGridTick()
		}
	}
}

func (s *Server) composeGridTick() {
	start := time.Now()
	active := s.reg.ActiveSlots()
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	if len(active) == 0 {
		return
	}
	frames := s.latestFrames()

	cellW, cellH := s.cfg.GridCellWidth, s.cfg.GridCellHeight
	if cellW <= 0 {
		cellW = 80
	}
	if cellH <= 0 {
		cellH = 24
	}

	var broadcast int64
	for _, viewer := range active {
		sources := make([]*registry.Slot, 0, len(active)-1)
		for _, other := range active {
			if other.ID != viewer.ID {
				sources = append(sources, other)
			}
		}
		if len(sources) == 0 {
			continue
		}
		cols, rows := gridDims(len(sources))
		canvas := render.NewFrame(cellW*cols, cellH*rows)
		for i, src := range sources {
			fr, ok := frames[src.ID]
			if !ok {
				continue
			}
			srcFrame := render.Frame{Width: fr.Width, Height: fr.Height, Pix: fr.Payload}
			cell := render.Resize(srcFrame, cellW, cellH, false)
			blit(canvas, cell, (i%cols)*cellW, (i/cols)*cellH)
		}
		out := framefmt.EncodeFrame(framefmt.Frame{
			Width:       canvas.Width,
			Height:      canvas.Height,
			PixelFormat: framefmt.PixelRGB24,
			PtsNS:       start.UnixNano(),
			Payload:     canvas.Pix,
		})
		if viewer.SendQueue.TryPush(registry.OutboundFrame{Type: wire.TypeVideoFrame, Payload: out}) {
			broadcast++
		} else {
			s.obs.QueueDrop(observability.DropLaneVideo)
		}
	}
	s.obs.FramesBroadcast(broadcast)
	s.obs.RenderTickDuration(time.Since(start))
}

// gridDims picks the smallest cols x rows grid with cols*rows >= n,
// cols == ceil(sqrt(n)), matching the deterministic layout the client
// uses for its own local composition.
func gridDims(n int) (cols, rows int) {
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	rows = (n + cols - 1) / cols
	return cols, rows
}

// blit copies src into dst at the given pixel offset, clipping src against
// dst's bounds. Both frames are tightly packed RGB24.
func blit(dst, src render.Frame, offX, offY int) {
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
