// Package server implements the many-to-many relay: it accepts client
// connections, runs the handshake, and fans video/audio/control traffic
// out to every other active participant, optionally composing a server-
// side grid instead of relying on pass-through broadcast.
package server

import (
	"time"

	"github.com/asciichat/asciichat-go/internal/defaults"
	"github.com/asciichat/asciichat-go/internal/identity"
	"github.com/asciichat/asciichat-go/observability"
)

// Config configures a Server.
type Config struct {
	Identity *identity.Identity

	RequirePassword bool
	Password        string
	BcryptRounds    int

	MaxFrameBytes int

	// MaxClients caps concurrent active slots; a connection accepted past
	// the cap is closed before the handshake begins. 0 means unlimited.
	MaxClients int

	VideoQueueCapacity   int
	AudioQueueCapacity   int
	ControlQueueCapacity int
	ControlQueueTimeout  time.Duration

	// ServerComposedGrid, when true, runs a fixed-cadence render task that
	// composes one grid VIDEO_FRAME per viewer instead of pass-through
	// broadcast (spec §4.8b).
	ServerComposedGrid bool
	GridFPS            int
	GridCellWidth      int
	GridCellHeight     int

	HandshakeStepTimeout time.Duration
	HeartbeatInterval    time.Duration

	Observer observability.ServerObserver
}

// DefaultConfig returns conservative defaults taken from internal/defaults
// (10s handshake steps, 10s heartbeat, 30Hz grid cadence).
func DefaultConfig() Config {
	return Config{
		MaxFrameBytes:        4 << 20,
		VideoQueueCapacity:   8,
		AudioQueueCapacity:   16,
		ControlQueueCapacity: 32,
		ControlQueueTimeout:  defaults.ControlQueueTimeout,
		GridFPS:              defaults.RenderFPS,
		GridCellWidth:        80,
		GridCellHeight:       24,
		HandshakeStepTimeout: defaults.HandshakeStepTimeout,
		HeartbeatInterval:    defaults.HeartbeatInterval,
		Observer:             observability.NoopServerObserver,
	}
}
