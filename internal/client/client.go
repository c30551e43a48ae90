package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asciichat/asciichat-go/internal/aead"
	"github.com/asciichat/asciichat-go/internal/compress"
	"github.com/asciichat/asciichat-go/internal/defaults"
	"github.com/asciichat/asciichat-go/internal/framefmt"
	"github.com/asciichat/asciichat-go/internal/handshake"
	"github.com/asciichat/asciichat-go/internal/render"
	"github.com/asciichat/asciichat-go/internal/wire"
)

const aeadOverhead = 16

// ErrCaptureDevice wraps a capture source failure that survived the
// retry-with-backoff policy (spec §7: 5 attempts, then fatal), matching
// the CLI's exit code 5.
var ErrCaptureDevice = errors.New("client: capture device unavailable")

// Client is a connected chat session: one handshake, one socket, a
// capture loop writing local samples out, and a render loop painting
// whatever the server or other participants sent in.
type Client struct {
	cfg  Config
	conn net.Conn
	sess *handshake.Session

	writeMu sync.Mutex
	sendSeq uint64 // atomic, next outgoing sequence number

	recvSeq uint64 // atomic, only touched by the receive loop

	framesMu sync.Mutex
	frames   map[uint32]render.Frame
	order    []uint32

	captureErr atomic.Value // error, set at most once by a capture loop

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// failCapture records a terminal capture failure and unblocks every other
// loop. Only the first failure sticks.
func (c *Client) failCapture(err error) {
	c.captureErr.CompareAndSwap(nil, fmt.Errorf("%w: %v", ErrCaptureDevice, err))
	c.Stop()
}

// Dial connects to cfg.ConnectAddr, performs the handshake and the
// one-shot CAPABILITIES exchange, and returns a Client ready for Run.
func Dial(cfg Config) (*Client, error) {
	conn, err := net.DialTimeout("tcp", cfg.ConnectAddr, defaults.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	sess, err := handshake.ClientHandshake(conn, cfg.Identity, cfg.HostID, cfg.HostStore, handshake.ClientOptions{
		Password:    cfg.Password,
		StepTimeout: cfg.handshakeStepTimeout(),
		MaxFrame:    cfg.maxFrameBytes(),
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		conn:   conn,
		sess:   sess,
		frames: make(map[uint32]render.Frame),
		stopCh: make(chan struct{}),
	}

	if err := c.sendCapabilities(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) sendCapabilities() error {
	payload, err := json.Marshal(capabilitiesMsg{
		DisplayName: c.cfg.DisplayName,
		ColorMode:   c.cfg.ColorMode,
		MaxWidth:    c.cfg.Width,
		MaxHeight:   c.cfg.Height,
		Audio:       c.cfg.Audio,
	})
	if err != nil {
		return err
	}
	return c.sealAndSend(wire.TypeCapabilities, payload)
}

// Run drives the session until the connection closes or Stop is called.
// It blocks until the receive loop returns.
func (c *Client) Run() error {
	if c.cfg.Video != nil {
		if err := c.cfg.Video.Open(); err != nil {
			return err
		}
		c.wg.Add(1)
		go c.captureVideoLoop()
	}
	if c.cfg.Audio && c.cfg.Mic != nil {
		if err := c.cfg.Mic.Open(); err != nil {
			return err
		}
		c.wg.Add(1)
		go c.captureAudioLoop()
	}

	c.wg.Add(1)
	go c.renderLoop()

	err := c.receiveLoop()

	c.Stop()
	c.wg.Wait()
	if c.cfg.Video != nil {
		_ = c.cfg.Video.Close()
	}
	if c.cfg.Mic != nil {
		_ = c.cfg.Mic.Close()
	}
	if c.cfg.Sink != nil {
		_ = c.cfg.Sink.Close()
	}
	_ = c.conn.Close()
	if captureErr, ok := c.captureErr.Load().(error); ok {
		return captureErr
	}
	return err
}

// Stop signals every loop to wind down. Safe to call more than once and
// from any goroutine.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Client) receiveLoop() error {
	codec, err := compress.New(nil)
	if err != nil {
		return err
	}
	defer codec.Close()

	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(2 * defaults.HeartbeatInterval)); err != nil {
			return err
		}
		pkt, err := wire.Decode(c.conn, c.cfg.maxFrameBytes())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		plaintext, err := aead.Open(c.sess.Keys.S2C, pkt.Header.Seq, atomic.LoadUint64(&c.recvSeq), c.sess.RecvDir, pkt.Header.AAD(), pkt.Payload)
		if err != nil {
			if errors.Is(err, aead.ErrReplay) {
				continue
			}
			return err
		}
		atomic.StoreUint64(&c.recvSeq, pkt.Header.Seq)

		switch pkt.Header.Type {
		case wire.TypeVideoFrame:
			c.handleVideoFrame(codec, pkt.Header.Flags, pkt.Header.ClientID, plaintext)
		case wire.TypeAudioBatch:
			c.handleAudioBatch(codec, pkt.Header.Flags, plaintext)
		case wire.TypePing:
			c.handlePing(plaintext)
		case wire.TypeClientJoin, wire.TypeClientLeave:
			c.handleMembership(pkt.Header.Type, plaintext)
		case wire.TypeClose:
			return nil
		default:
			if pkt.Header.Flags&wire.FlagNonFatal != 0 {
				continue
			}
			return errors.New("client: unknown fatal packet type")
		}
	}
}

func (c *Client) handleVideoFrame(codec *compress.Codec, flags wire.Flag, sourceID uint32, payload []byte) {
	plain := payload
	if flags&wire.FlagCompressed != 0 {
		var err error
		plain, err = codec.Decompress(payload, c.cfg.maxFrameBytes())
		if err != nil {
			return
		}
	}
	fr, err := framefmt.DecodeFrame(plain)
	if err != nil {
		return
	}
	c.framesMu.Lock()
	if _, ok := c.frames[sourceID]; !ok {
		c.order = append(c.order, sourceID)
	}
	c.frames[sourceID] = render.Frame{Width: fr.Width, Height: fr.Height, Pix: fr.Payload}
	c.framesMu.Unlock()
}

func (c *Client) handleAudioBatch(codec *compress.Codec, flags wire.Flag, payload []byte) {
	if c.cfg.Sink == nil {
		return
	}
	plain := payload
	if flags&wire.FlagCompressed != 0 {
		var err error
		plain, err = codec.Decompress(payload, c.cfg.maxFrameBytes())
		if err != nil {
			return
		}
	}
	ab, err := framefmt.DecodeAudioBatch(plain)
	if err != nil {
		return
	}
	_ = c.cfg.Sink.PlaySamples(framefmt.PCMFloat32(ab))
}

func (c *Client) handlePing(payload []byte) {
	var ping pingMsg
	if err := json.Unmarshal(payload, &ping); err != nil {
		return
	}
	pong, err := json.Marshal(pongMsg{Nonce: ping.Nonce})
	if err != nil {
		return
	}
	_ = c.sealAndSend(wire.TypePong, pong)
}

func (c *Client) handleMembership(t wire.Type, payload []byte) {
	if t == wire.TypeClientLeave {
		var leave clientLeaveMsg
		if err := json.Unmarshal(payload, &leave); err != nil {
			return
		}
		c.framesMu.Lock()
		delete(c.frames, leave.SlotID)
		for i, id := range c.order {
			if id == leave.SlotID {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		c.framesMu.Unlock()
	}
}

func (c *Client) sealAndSend(t wire.Type, plaintext []byte, extraFlags ...wire.Flag) error {
	var flags wire.Flag
	for _, f := range extraFlags {
		flags |= f
	}
	seq := atomic.AddUint64(&c.sendSeq, 1)
	h := wire.Header{
		Type:       t,
		Flags:      flags | wire.FlagSealed,
		Seq:        seq,
		PayloadLen: uint32(len(plaintext) + aeadOverhead),
	}
	ciphertext, err := aead.Seal(c.sess.Keys.C2S, seq, c.sess.SendDir, h.AAD(), plaintext)
	if err != nil {
		return err
	}
	frame, err := wire.Encode(h, ciphertext, c.cfg.maxFrameBytes())
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(defaults.FrameDeadline)); err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}
