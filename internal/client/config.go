// Package client implements the client side of a chat session: the
// handshake dial, the capture loop that reads local webcam/mic samples
// and ships them to the server, and the receive/render loop that
// assembles the grid and paints the terminal.
package client

import (
	"io"
	"time"

	"github.com/asciichat/asciichat-go/internal/capture"
	"github.com/asciichat/asciichat-go/internal/defaults"
	"github.com/asciichat/asciichat-go/internal/identity"
	"github.com/asciichat/asciichat-go/internal/knownhosts"
	"github.com/asciichat/asciichat-go/internal/render"
)

// Config configures a Client session.
type Config struct {
	ConnectAddr string
	HostID      string
	Identity    *identity.Identity
	HostStore   *knownhosts.Store
	Password    string

	DisplayName string
	ColorMode   string // mono, fg256, bg256, fg24, bg24
	Width       int
	Height      int
	Audio       bool

	RenderFPS  int
	CaptureFPS int

	MaxFrameBytes        int
	HandshakeStepTimeout time.Duration

	// SnapshotMode disables the continuous render tick: the client emits
	// one composed frame to Output and returns.
	SnapshotMode bool

	Video capture.VideoSource
	Mic   capture.AudioSource
	Sink  capture.AudioSink

	Output io.Writer
}

func (c Config) renderMode() render.Mode {
	switch c.ColorMode {
	case "fg256":
		return render.ModeFG256
	case "bg256":
		return render.ModeBG256
	case "fg24":
		return render.ModeFGTrueColor
	case "bg24":
		return render.ModeBGTrueColor
	default:
		return render.ModeMono
	}
}

func (c Config) renderFPS() int {
	if c.RenderFPS > 0 {
		return c.RenderFPS
	}
	return defaults.RenderFPS
}

func (c Config) captureFPS() int {
	if c.CaptureFPS > 0 {
		return c.CaptureFPS
	}
	return defaults.CaptureFPS
}

func (c Config) maxFrameBytes() int {
	if c.MaxFrameBytes > 0 {
		return c.MaxFrameBytes
	}
	return 4 << 20
}

func (c Config) handshakeStepTimeout() time.Duration {
	if c.HandshakeStepTimeout > 0 {
		return c.HandshakeStepTimeout
	}
	return defaults.HandshakeStepTimeout
}
