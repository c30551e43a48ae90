// Package handshake implements the client/server handshake state machine:
// HELLO/SERVER_HELLO key agreement, known-hosts verification of the
// server's identity, an optional password-authenticated step, and
// derivation of the directional session keys used by the record layer.
package handshake

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/asciichat/asciichat-go/internal/aead"
	"github.com/asciichat/asciichat-go/internal/defaults"
	"github.com/asciichat/asciichat-go/internal/identity"
	"github.com/asciichat/asciichat-go/internal/knownhosts"
	"github.com/asciichat/asciichat-go/internal/wire"
	"github.com/dchest/bcrypt_pbkdf"
)

// State is a step in the handshake state machine.
type State int

const (
	Init State = iota
	HelloSent
	ServerHelloReceived
	AuthChallengeReceived
	AuthResponseSent
	Established
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case HelloSent:
		return "HelloSent"
	case ServerHelloReceived:
		return "ServerHelloReceived"
	case AuthChallengeReceived:
		return "AuthChallengeReceived"
	case AuthResponseSent:
		return "AuthResponseSent"
	case Established:
		return "Established"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	// ErrTimeout signals a handshake step exceeded its deadline.
	ErrTimeout = errors.New("handshake: step timeout")
	// ErrProtocol signals an out-of-sequence or malformed handshake message;
	// always fatal.
	ErrProtocol = errors.New("handshake: protocol violation")
	// ErrIdentityMismatch signals the server's identity key did not match
	// known-hosts or failed signature verification.
	ErrIdentityMismatch = errors.New("handshake: server identity mismatch")
	// ErrAuthFailed signals the password step's MAC did not verify.
	ErrAuthFailed = errors.New("handshake: password authentication failed")
	// ErrPasswordRequired signals the server demanded a password the caller
	// did not supply.
	ErrPasswordRequired = errors.New("handshake: password required")
)

const defaultBcryptRounds = 16

// Session is the outcome of a completed handshake: directional keys,
// sequence counters and the connection itself, ready for the record layer.
type Session struct {
	Conn net.Conn

	Keys       aead.SessionKeys
	SendDir    aead.Direction
	RecvDir    aead.Direction
	SendSeq    uint64
	RecvSeq    uint64
	ServerCaps uint32
	ClientCaps uint32

	state State
}

// State reports the current FSM state (Established on a successful return).
func (s *Session) State() State { return s.state }

// ClientOptions configures the client side of a handshake.
type ClientOptions struct {
	Caps        uint32
	Password    string // supplied only if the server challenges for one
	StepTimeout time.Duration
	MaxFrame    int
}

// ClientHandshake performs the handshake from the connecting client's
// perspective, verifying the server identity against hostStore (TOFU: an
// unseen host is pinned on first contact).
func ClientHandshake(conn net.Conn, ident *identity.Identity, hostID string, hostStore *knownhosts.Store, opts ClientOptions) (*Session, error) {
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = defaults.HandshakeStepTimeout
	}

	ephPriv, ephPub, err := aead.GenerateEphemeralKeypair()
	if err != nil {
		return nil, err
	}
	nonceC := make([]byte, 32)
	if _, err := rand.Read(nonceC); err != nil {
		return nil, err
	}

	hello := Hello{
		ClientIdentityPub: ident.Pub,
		EphemeralPub:      ephPub,
		NonceC:            nonceC,
		Caps:              opts.Caps,
	}
	if err := writeMessage(conn, timeout, opts.MaxFrame, wire.TypeHello, 0, hello); err != nil {
		return nil, err
	}

	var sh ServerHello
	if err := readMessage(conn, timeout, opts.MaxFrame, wire.TypeServerHello, &sh); err != nil {
		return nil, err
	}
	if len(sh.ServerIdentityPub) != ed25519.PublicKeySize {
		return nil, ErrProtocol
	}

	outcome, err := hostStore.Check(hostID, ed25519.PublicKey(sh.ServerIdentityPub))
	switch outcome {
	case knownhosts.Mismatch:
		return nil, fmt.Errorf("%w: %v", ErrIdentityMismatch, err)
	case knownhosts.Unknown:
		if err := hostStore.Add(hostID, ed25519.PublicKey(sh.ServerIdentityPub), time.Now().Unix()); err != nil {
			return nil, err
		}
	case knownhosts.Known:
		_ = hostStore.Touch(hostID, time.Now().Unix())
	}

	th, err := TranscriptHash(TranscriptInputs{
		Version:           wire.ProtocolVersion,
		ClientIdentityPub: ident.Pub,
		ServerIdentityPub: sh.ServerIdentityPub,
		ClientEphPub:      ephPub,
		ServerEphPub:      sh.EphemeralPub,
		NonceC:            nonceC,
		NonceS:            sh.NonceS,
		Caps:              sh.Caps,
	})
	if err != nil {
		return nil, err
	}
	if !aead.Verify(ed25519.PublicKey(sh.ServerIdentityPub), th[:], sh.SigTranscript) {
		return nil, ErrIdentityMismatch
	}

	peerEphPub, err := aead.ParseEphemeralPublicKey(sh.EphemeralPub)
	if err != nil {
		return nil, err
	}
	shared, err := aead.ECDH(ephPriv, peerEphPub)
	if err != nil {
		return nil, err
	}
	keys, err := aead.DeriveSessionKeys(shared, th)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Conn:       conn,
		Keys:       keys,
		SendDir:    aead.DirC2S,
		RecvDir:    aead.DirS2C,
		SendSeq:    0,
		RecvSeq:    0,
		ServerCaps: sh.Caps,
		ClientCaps: opts.Caps,
		state:      ServerHelloReceived,
	}

	// The server may now either challenge for a password or finish.
	pkt, err := readPacket(conn, timeout, opts.MaxFrame)
	if err != nil {
		return nil, err
	}
	switch pkt.Header.Type {
	case wire.TypeAuthChallenge:
		var ch AuthChallenge
		if err := json.Unmarshal(pkt.Payload, &ch); err != nil {
			return nil, ErrProtocol
		}
		sess.state = AuthChallengeReceived
		if opts.Password == "" {
			return nil, ErrPasswordRequired
		}
		rounds := ch.Rounds
		if rounds <= 0 {
			rounds = defaultBcryptRounds
		}
		wrapKey, err := bcrypt_pbkdf.Key([]byte(opts.Password), ch.Salt, rounds, 32)
		if err != nil {
			return nil, err
		}
		mac := hmacTranscript(wrapKey, th)
		if err := writeMessage(conn, timeout, opts.MaxFrame, wire.TypeAuthResponse, 0, AuthResponse{MAC: mac}); err != nil {
			return nil, err
		}
		sess.state = AuthResponseSent

		pkt, err = readPacket(conn, timeout, opts.MaxFrame)
		if err != nil {
			return nil, err
		}
		if pkt.Header.Type != wire.TypeSessionEstablished {
			if pkt.Header.Type == wire.TypeError {
				return nil, ErrAuthFailed
			}
			return nil, ErrProtocol
		}
	case wire.TypeSessionEstablished:
		// no password required
	default:
		return nil, ErrProtocol
	}

	sess.state = Established
	return sess, nil
}

// ServerOptions configures the accepting side of a handshake.
type ServerOptions struct {
	ServerCaps       uint32
	RequirePassword  bool
	Password         string
	BcryptRounds     int
	StepTimeout      time.Duration
	MaxFrame         int
}

// ServerHandshake performs the handshake from the accepting server's
// perspective: it always signs the transcript with its own identity and,
// when RequirePassword is set, challenges the client before establishing
// the session.
func ServerHandshake(conn net.Conn, ident *identity.Identity, opts ServerOptions) (*Session, error) {
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = defaults.HandshakeStepTimeout
	}

	var hello Hello
	if err := readMessage(conn, timeout, opts.MaxFrame, wire.TypeHello, &hello); err != nil {
		return nil, err
	}
	if len(hello.ClientIdentityPub) != ed25519.PublicKeySize {
		return nil, ErrProtocol
	}

	ephPriv, ephPub, err := aead.GenerateEphemeralKeypair()
	if err != nil {
		return nil, err
	}
	nonceS := make([]byte, 32)
	if _, err := rand.Read(nonceS); err != nil {
		return nil, err
	}

	th, err := TranscriptHash(TranscriptInputs{
		Version:           wire.ProtocolVersion,
		ClientIdentityPub: hello.ClientIdentityPub,
		ServerIdentityPub: ident.Pub,
		ClientEphPub:      hello.EphemeralPub,
		ServerEphPub:      ephPub,
		NonceC:            hello.NonceC,
		NonceS:            nonceS,
		Caps:              opts.ServerCaps,
	})
	if err != nil {
		return nil, err
	}
	sig := aead.Sign(ident.Priv, th[:])

	sh := ServerHello{
		ServerIdentityPub: ident.Pub,
		EphemeralPub:      ephPub,
		NonceS:            nonceS,
		Caps:              opts.ServerCaps,
		SigTranscript:     sig,
	}
	if err := writeMessage(conn, timeout, opts.MaxFrame, wire.TypeServerHello, 0, sh); err != nil {
		return nil, err
	}

	peerEphPub, err := aead.ParseEphemeralPublicKey(hello.EphemeralPub)
	if err != nil {
		return nil, err
	}
	shared, err := aead.ECDH(ephPriv, peerEphPub)
	if err != nil {
		return nil, err
	}
	keys, err := aead.DeriveSessionKeys(shared, th)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Conn:       conn,
		Keys:       keys,
		SendDir:    aead.DirS2C,
		RecvDir:    aead.DirC2S,
		SendSeq:    0,
		RecvSeq:    0,
		ServerCaps: opts.ServerCaps,
		ClientCaps: hello.Caps,
		state:      ServerHelloReceived,
	}

	if opts.RequirePassword {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		rounds := opts.BcryptRounds
		if rounds <= 0 {
			rounds = defaultBcryptRounds
		}
		if err := writeMessage(conn, timeout, opts.MaxFrame, wire.TypeAuthChallenge, 0, AuthChallenge{Salt: salt, Rounds: rounds}); err != nil {
			return nil, err
		}
		sess.state = AuthChallengeReceived

		var resp AuthResponse
		if err := readMessage(conn, timeout, opts.MaxFrame, wire.TypeAuthResponse, &resp); err != nil {
			return nil, err
		}
		sess.state = AuthResponseSent

		wrapKey, err := bcrypt_pbkdf.Key([]byte(opts.Password), salt, rounds, 32)
		if err != nil {
			return nil, err
		}
		expected := hmacTranscript(wrapKey, th)
		if subtle.ConstantTimeCompare(expected, resp.MAC) != 1 {
			_ = writeMessage(conn, timeout, opts.MaxFrame, wire.TypeError, 0, struct{}{})
			return nil, ErrAuthFailed
		}
	}

	if err := writeMessage(conn, timeout, opts.MaxFrame, wire.TypeSessionEstablished, 0, SessionEstablished{}); err != nil {
		return nil, err
	}
	sess.state = Established
	return sess, nil
}

func hmacTranscript(key []byte, th [32]byte) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write(th[:])
	return m.Sum(nil)
}

func writeMessage(conn net.Conn, timeout time.Duration, maxFrame int, t wire.Type, clientID uint32, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame, err := wire.Encode(wire.Header{Type: t, ClientID: clientID}, payload, maxFrame)
	if err != nil {
		return err
	}
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err = conn.Write(frame)
	return err
}

func readPacket(conn net.Conn, timeout time.Duration, maxFrame int) (wire.Packet, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return wire.Packet{}, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	pkt, err := wire.Decode(conn, maxFrame)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return wire.Packet{}, ErrTimeout
		}
		return wire.Packet{}, err
	}
	return pkt, nil
}

func readMessage(conn net.Conn, timeout time.Duration, maxFrame int, want wire.Type, v interface{}) error {
	pkt, err := readPacket(conn, timeout, maxFrame)
	if err != nil {
		return err
	}
	if pkt.Header.Type != want {
		return ErrProtocol
	}
	if err := json.Unmarshal(pkt.Payload, v); err != nil {
		return ErrProtocol
	}
	return nil
}
