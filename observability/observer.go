// Package observability defines the pluggable metrics-observer interfaces
// used by the server, mixer, and renderer. A no-op implementation is the
// default; an atomic-swap wrapper lets a CLI toggle a Prometheus exporter
// at runtime via signals.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// CloseReason enumerates why a client connection transitioned to Closed.
type CloseReason string

const (
	CloseReasonPeerClosed    CloseReason = "peer_closed"
	CloseReasonWriteError    CloseReason = "write_error"
	CloseReasonReadError     CloseReason = "read_error"
	CloseReasonProtocol      CloseReason = "protocol_error"
	CloseReasonCrypto        CloseReason = "crypto_error"
	CloseReasonIdleTimeout   CloseReason = "idle_timeout"
	CloseReasonServerClosing CloseReason = "server_closing"
)

// HandshakeResult enumerates handshake outcomes.
type HandshakeResult string

const (
	HandshakeResultOK      HandshakeResult = "ok"
	HandshakeResultTimeout HandshakeResult = "timeout"
	HandshakeResultFailed  HandshakeResult = "failed"
)

// DropLane identifies which bounded queue dropped a frame.
type DropLane string

const (
	DropLaneVideo   DropLane = "video"
	DropLaneAudio   DropLane = "audio"
	DropLaneControl DropLane = "control"
)

// ServerObserver receives server-level metric events.
type ServerObserver interface {
	ConnCount(n int64)
	ActiveSlots(n int)
	Handshake(result HandshakeResult, d time.Duration)
	Close(reason CloseReason)
	FramesBroadcast(n int64)
	QueueDrop(lane DropLane)
	MixerActiveSources(n int)
	RenderTickDuration(d time.Duration)
}

type noopServerObserver struct{}

func (noopServerObserver) ConnCount(int64)                        {}
func (noopServerObserver) ActiveSlots(int)                        {}
func (noopServerObserver) Handshake(HandshakeResult, time.Duration) {}
func (noopServerObserver) Close(CloseReason)                      {}
func (noopServerObserver) FramesBroadcast(int64)                  {}
func (noopServerObserver) QueueDrop(DropLane)                     {}
func (noopServerObserver) MixerActiveSources(int)                 {}
func (noopServerObserver) RenderTickDuration(time.Duration)       {}

// NoopServerObserver is a zero-cost observer used when metrics are disabled.
var NoopServerObserver ServerObserver = noopServerObserver{}

// AtomicServerObserver swaps its delegate at runtime, allowing a running
// server to enable/disable metrics export without restarting.
type AtomicServerObserver struct {
	once sync.Once
	v    atomic.Value
}

type serverObserverHolder struct {
	obs ServerObserver
}

// NewAtomicServerObserver returns an initialized atomic observer.
func NewAtomicServerObserver() *AtomicServerObserver {
	a := &AtomicServerObserver{}
	a.once.Do(func() { a.v.Store(&serverObserverHolder{obs: NoopServerObserver}) })
	return a
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicServerObserver) Set(obs ServerObserver) {
	if obs == nil {
		obs = NoopServerObserver
	}
	a.once.Do(func() { a.v.Store(&serverObserverHolder{obs: NoopServerObserver}) })
	a.v.Store(&serverObserverHolder{obs: obs})
}

func (a *AtomicServerObserver) load() ServerObserver {
	a.once.Do(func() { a.v.Store(&serverObserverHolder{obs: NoopServerObserver}) })
	return a.v.Load().(*serverObserverHolder).obs
}

func (a *AtomicServerObserver) ConnCount(n int64) { a.load().ConnCount(n) }
func (a *AtomicServerObserver) ActiveSlots(n int) { a.load().ActiveSlots(n) }
func (a *AtomicServerObserver) Handshake(result HandshakeResult, d time.Duration) {
	a.load().Handshake(result, d)
}
func (a *AtomicServerObserver) Close(reason CloseReason)     { a.load().Close(reason) }
func (a *AtomicServerObserver) FramesBroadcast(n int64)      { a.load().FramesBroadcast(n) }
func (a *AtomicServerObserver) QueueDrop(lane DropLane)      { a.load().QueueDrop(lane) }
func (a *AtomicServerObserver) MixerActiveSources(n int)     { a.load().MixerActiveSources(n) }
func (a *AtomicServerObserver) RenderTickDuration(d time.Duration) {
	a.load().RenderTickDuration(d)
}
