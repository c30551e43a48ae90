package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/asciichat/asciichat-go/internal/aead"
	"github.com/asciichat/asciichat-go/internal/compress"
	"github.com/asciichat/asciichat-go/internal/framefmt"
	"github.com/asciichat/asciichat-go/internal/handshake"
	"github.com/asciichat/asciichat-go/internal/registry"
	"github.com/asciichat/asciichat-go/internal/wire"
	"github.com/asciichat/asciichat-go/observability"
)

// aeadOverhead is the fixed tag size XChaCha20-Poly1305 (via NewX) adds to
// every sealed payload, needed to size payload_len for the AAD before the
// ciphertext itself exists.
const aeadOverhead = 16

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	hsSess, err := handshake.ServerHandshake(conn, s.cfg.Identity, handshake.ServerOptions{
		ServerCaps:      0,
		RequirePassword: s.cfg.RequirePassword,
		Password:        s.cfg.Password,
		BcryptRounds:    s.cfg.BcryptRounds,
		StepTimeout:     s.cfg.HandshakeStepTimeout,
		MaxFrame:        s.cfg.MaxFrameBytes,
	})
	if err != nil {
		result := observability.HandshakeResultFailed
		if errors.Is(err, handshake.ErrTimeout) {
			result = observability.HandshakeResultTimeout
		}
		s.obs.Handshake(result, time.Since(start))
		s.log.Warn("handshake failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	s.obs.Handshake(observability.HandshakeResultOK, time.Since(start))

	caps, err := s.readCapabilities(conn, hsSess)
	if err != nil {
		s.log.Warn("capabilities read failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	queueCap := s.cfg.VideoQueueCapacity + s.cfg.AudioQueueCapacity + s.cfg.ControlQueueCapacity
	slot := s.reg.Join(caps.DisplayName, conn.RemoteAddr(), registry.Caps{
		ColorMode: caps.ColorMode,
		MaxWidth:  caps.MaxWidth,
		MaxHeight: caps.MaxHeight,
		Audio:     caps.Audio,
	}, queueCap)
	slot.SendKey = hsSess.Keys.S2C
	slot.RecvKey = hsSess.Keys.C2S
	slot.SetRecvSeq(hsSess.RecvSeq)
	slot.SetState(registry.Active)
	s.obs.ConnCount(int64(s.reg.Len()))
	s.log.Info("client joined", "slot_id", slot.ID, "display_name", slot.DisplayName, "remote", conn.RemoteAddr())

	s.broadcastClientJoin(slot)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.senderLoop(conn, slot)
	}()

	s.receiverLoop(conn, slot, hsSess)

	s.reg.Leave(slot.ID)
	s.mixer.RemoveSource(slot.ID)
	s.clearLatestFrame(slot.ID)
	wg.Wait()
	s.obs.ConnCount(int64(s.reg.Len()))
	s.broadcastClientLeave(slot.ID)
	s.log.Info("client left", "slot_id", slot.ID)
}

// readCapabilities reads the single CAPABILITIES packet a client sends
// immediately after the handshake establishes, before it has a registry
// slot (and therefore before slot.RecvKey/RecvSeq exist).
func (s *Server) readCapabilities(conn net.Conn, hsSess *handshake.Session) (capabilitiesMsg, error) {
	if s.cfg.HandshakeStepTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeStepTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}
	pkt, err := wire.Decode(conn, s.cfg.MaxFrameBytes)
	if err != nil {
		return capabilitiesMsg{}, err
	}
	if pkt.Header.Type != wire.TypeCapabilities {
		return capabilitiesMsg{}, handshake.ErrProtocol
	}
	plaintext, err := aead.Open(hsSess.Keys.C2S, pkt.Header.Seq, hsSess.RecvSeq, hsSess.RecvDir, pkt.Header.AAD(), pkt.Payload)
	if err != nil {
		return capabilitiesMsg{}, err
	}
	hsSess.RecvSeq = pkt.Header.Seq
	var caps capabilitiesMsg
	if err := json.Unmarshal(plaintext, &caps); err != nil {
		return capabilitiesMsg{}, handshake.ErrProtocol
	}
	return caps, nil
}

func closeReasonFor(err error) observability.CloseReason {
	if errors.Is(err, io.EOF) {
		return observability.CloseReasonPeerClosed
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return observability.CloseReasonIdleTimeout
	}
	return observability.CloseReasonReadError
}

// receiverLoop reads, authenticates, and classifies packets from one
// client until the socket errors, the client sends CLOSE, or a fatal
// protocol/crypto error occurs.
func (s *Server) receiverLoop(conn net.Conn, slot *registry.Slot, hsSess *handshake.Session) {
	codec, err := compress.New(nil)
	if err != nil {
		s.log.Error("compress.New failed", "err", err)
		return
	}
	defer codec.Close()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout())); err != nil {
			return
		}
		pkt, err := wire.Decode(conn, s.cfg.MaxFrameBytes)
		if err != nil {
			s.obs.Close(closeReasonFor(err))
			return
		}
		slot.TouchRx(time.Now())

		if pkt.Header.Flags&wire.FlagSealed == 0 {
			s.log.Warn("dropping unsealed packet after handshake", "slot_id", slot.ID, "type", pkt.Header.Type)
			continue
		}

		plaintext, err := aead.Open(slot.RecvKey, pkt.Header.Seq, slot.RecvSeq(), hsSess.RecvDir, pkt.Header.AAD(), pkt.Payload)
		if err != nil {
			if errors.Is(err, aead.ErrReplay) {
				s.log.Warn("dropping replayed packet", "slot_id", slot.ID, "seq", pkt.Header.Seq)
				continue
			}
			s.obs.Close(observability.CloseReasonCrypto)
			s.log.Warn("closing connection: open failed", "slot_id", slot.ID, "err", err)
			return
		}
		slot.SetRecvSeq(pkt.Header.Seq)

		switch pkt.Header.Type {
		case wire.TypeVideoFrame:
			s.handleVideoFrame(codec, slot, pkt.Header.Flags, plaintext)
		case wire.TypeAudioBatch:
			s.handleAudioBatch(codec, slot, pkt.Header.Flags, plaintext)
		case wire.TypePing:
			s.handlePing(slot, plaintext)
		case wire.TypeCapabilities:
			s.log.Debug("ignoring post-join capabilities update", "slot_id", slot.ID)
		case wire.TypeClose:
			slot.SetState(registry.Draining)
			return
		default:
			if pkt.Header.Flags&wire.FlagNonFatal != 0 {
				continue
			}
			s.obs.Close(observability.CloseReasonProtocol)
			s.log.Warn("closing connection: unknown fatal packet type", "slot_id", slot.ID, "type", pkt.Header.Type)
			return
		}
	}
}

func (s *Server) handleVideoFrame(codec *compress.Codec, slot *registry.Slot, flags wire.Flag, payload []byte) {
	if s.cfg.ServerComposedGrid {
		plain := payload
		if flags&wire.FlagCompressed != 0 {
			var err error
			plain, err = codec.Decompress(payload, s.cfg.MaxFrameBytes)
			if err != nil {
				s.log.Warn("dropping video frame: decompress failed", "slot_id", slot.ID, "err", err)
				return
			}
		}
		fr, err := framefmt.DecodeFrame(plain)
		if err != nil {
			s.log.Warn("dropping video frame: decode failed", "slot_id", slot.ID, "err", err)
			return
		}
		s.setLatestFrame(slot.ID, fr)
		return
	}

	out := registry.OutboundFrame{
		Type:         wire.TypeVideoFrame,
		SourceSlotID: slot.ID,
		Flags:        flags &^ wire.FlagSealed,
		Payload:      payload,
	}
	for _, other := range s.reg.ActiveSlots() {
		if other.ID == slot.ID {
			continue
		}
		if !other.SendQueue.TryPush(out) {
			s.obs.QueueDrop(observability.DropLaneVideo)
		}
	}
	s.obs.FramesBroadcast(1)
}

func (s *Server) handleAudioBatch(codec *compress.Codec, slot *registry.Slot, flags wire.Flag, payload []byte) {
	plain := payload
	if flags&wire.FlagCompressed != 0 {
		var err error
		plain, err = codec.Decompress(payload, s.cfg.MaxFrameBytes)
		if err != nil {
			s.log.Warn("dropping audio batch: decompress failed", "slot_id", slot.ID, "err", err)
			return
		}
	}
	ab, err := framefmt.DecodeAudioBatch(plain)
	if err != nil {
		s.log.Warn("dropping audio batch: decode failed", "slot_id", slot.ID, "err", err)
		return
	}
	s.mixer.SetSource(slot.ID, framefmt.PCMFloat32(ab))
}

func (s *Server) handlePing(slot *registry.Slot, payload []byte) {
	var ping pingMsg
	if err := json.Unmarshal(payload, &ping); err != nil {
		return
	}
	pong, err := json.Marshal(pongMsg{Nonce: ping.Nonce})
	if err != nil {
		return
	}
	if !slot.SendQueue.TryPush(registry.OutboundFrame{Type: wire.TypePong, Payload: pong}) {
		s.obs.QueueDrop(observability.DropLaneControl)
	}
}

func (s *Server) broadcastClientJoin(joined *registry.Slot) {
	payload, err := json.Marshal(clientJoinMsg{SlotID: joined.ID, DisplayName: joined.DisplayName})
	if err != nil {
		return
	}
	for _, other := range s.reg.ActiveSlots() {
		if other.ID == joined.ID {
			continue
		}
		if !other.SendQueue.TryPush(registry.OutboundFrame{Type: wire.TypeClientJoin, Payload: payload}) {
			s.obs.QueueDrop(observability.DropLaneControl)
		}
	}
}

func (s *Server) broadcastClientLeave(leftID uint32) {
	payload, err := json.Marshal(clientLeaveMsg{SlotID: leftID})
	if err != nil {
		return
	}
	for _, other := range s.reg.ActiveSlots() {
		if !other.SendQueue.TryPush(registry.OutboundFrame{Type: wire.TypeClientLeave, Payload: payload}) {
			s.obs.QueueDrop(observability.DropLaneControl)
		}
	}
}

// senderLoop drains slot's send queue, seals each frame with the slot's
// own key and next sequence number, and writes it to the socket. A write
// error moves the slot to Closed.
func (s *Server) senderLoop(conn net.Conn, slot *registry.Slot) {
	for {
		out, ok := slot.SendQueue.PopBlocking(time.Hour)
		if !ok {
			return
		}
		seq := slot.NextSendSeq()
		frame, err := s.sealAndEncode(slot.SendKey, aead.DirS2C, seq, out.Type, out.SourceSlotID, out.Flags, out.Payload)
		if err != nil {
			s.log.Error("seal failed", "slot_id", slot.ID, "err", err)
			slot.SetState(registry.Closed)
			return
		}
		if s.cfg.HandshakeStepTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.HandshakeStepTimeout))
		}
		if _, err := conn.Write(frame); err != nil {
			s.obs.Close(observability.CloseReasonWriteError)
			slot.SetState(registry.Closed)
			return
		}
		slot.TouchTx(time.Now())
	}
}

func (s *Server) sealAndEncode(key [32]byte, dir aead.Direction, seq uint64, t wire.Type, clientID uint32, flags wire.Flag, plaintext []byte) ([]byte, error) {
	h := wire.Header{
		Type:       t,
		Flags:      flags | wire.FlagSealed,
		ClientID:   clientID,
		Seq:        seq,
		PayloadLen: uint32(len(plaintext) + aeadOverhead),
	}
	ciphertext, err := aead.Seal(key, seq, dir, h.AAD(), plaintext)
	if err != nil {
		return nil, err
	}
	return wire.Encode(h, ciphertext, s.cfg.MaxFrameBytes)
}
