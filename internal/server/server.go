package server

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/asciichat/asciichat-go/fserrors"
	"github.com/asciichat/asciichat-go/internal/audio"
	"github.com/asciichat/asciichat-go/internal/framefmt"
	"github.com/asciichat/asciichat-go/internal/registry"
	"github.com/asciichat/asciichat-go/observability"
)

// Server accepts client connections, runs the handshake per connection,
// and fans video/audio/control traffic out to every other active
// participant.
type Server struct {
	cfg Config
	log *slog.Logger

	reg   *registry.Registry
	mixer *audio.Mixer
	obs   observability.ServerObserver

	framesMu sync.Mutex
	frames   map[uint32]framefmt.Frame

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New validates cfg and constructs a Server ready to Serve.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	if cfg.Identity == nil {
		return nil, fserrors.Wrap(fserrors.PathConfig, fserrors.StageValidate, fserrors.CodeConfigMissing, nil)
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.NoopServerObserver
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    log.With("subsystem", "server"),
		reg:    registry.New(),
		mixer:  audio.NewMixer(audio.DefaultConfig(48000)),
		obs:    cfg.Observer,
		frames: make(map[uint32]framefmt.Frame),
		stopCh: make(chan struct{}),
	}
	return s, nil
}

// Serve accepts connections on ln until Stop is called or ln closes.
func (s *Server) Serve(ln net.Listener) error {
	s.wg.Add(1)
	go s.housekeepingLoop()

	if s.cfg.ServerComposedGrid {
		s.wg.Add(1)
		go s.gridLoop()
	}
	s.wg.Add(1)
	go s.mixerLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				s.wg.Wait()
				return nil
			default:
				return fserrors.Wrap(fserrors.PathServer, fserrors.StageConnect, fserrors.CodeIOConnectFailed, err)
			}
		}
		if s.cfg.MaxClients > 0 && s.reg.Len() >= s.cfg.MaxClients {
			s.log.Warn("rejecting connection: at max-clients capacity", "remote", conn.RemoteAddr(), "max_clients", s.cfg.MaxClients)
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop signals all server goroutines to wind down. It does not block for
// in-flight connections to finish; callers that need that should close
// the listener first, which unblocks Serve's own Accept wait.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Registry exposes the client slot table, mainly for tests and metrics.
func (s *Server) Registry() *registry.Registry { return s.reg }

func (s *Server) heartbeatInterval() time.Duration {
	if s.cfg.HeartbeatInterval > 0 {
		return s.cfg.HeartbeatInterval
	}
	return 10 * time.Second
}

// idleTimeout closes a slot that has gone this long without a received
// packet, per the concurrency model's 2x heartbeat rule.
func (s *Server) idleTimeout() time.Duration {
	return 2 * s.heartbeatInterval()
}

// setLatestFrame records id's most recently decoded video frame for the
// grid render task to read on its next tick (drop-older: an unread frame
// is simply overwritten).
func (s *Server) setLatestFrame(id uint32, fr framefmt.Frame) {
	s.framesMu.Lock()
	s.frames[id] = fr
	s.framesMu.Unlock()
}

func (s *Server) clearLatestFrame(id uint32) {
	s.framesMu.Lock()
	delete(s.frames, id)
	s.framesMu.Unlock()
}

func (s *Server) latestFrames() map[uint32]framefmt.Frame {
	s.framesMu.Lock()
	defer s.framesMu.Unlock()
	out := make(map[uint32]framefmt.Frame, len(s.frames))
	for k, v := range s.frames {
		out[k] = v
	}
	return out
}

// housekeepingLoop sweeps idle slots and reports active-slot counts.
func (s *Server) housekeepingLoop() {
	defer s.wg.Done()
	t := time.NewTicker(s.heartbeatInterval())
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			now := time.Now()
			idle := s.idleTimeout()
			active := s.reg.ActiveSlots()
			s.obs.ActiveSlots(len(active))
			for _, slot := range active {
				if now.Sub(slot.LastRx()) > idle {
					s.log.Info("closing idle slot", "slot_id", slot.ID, "idle_for", now.Sub(slot.LastRx()))
					s.obs.Close(observability.CloseReasonIdleTimeout)
					slot.SetState(registry.Draining)
					s.reg.Leave(slot.ID)
				}
			}
		}
	}
}
