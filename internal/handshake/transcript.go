package handshake

import (
	"crypto/sha256"
	"errors"

	"github.com/asciichat/asciichat-go/internal/bin"
)

// ErrInvalidTranscriptInput signals a missing or oversized transcript field.
var ErrInvalidTranscriptInput = errors.New("handshake: invalid transcript input")

// TranscriptInputs captures the deterministic fields hashed into the
// handshake transcript. The hash binds both identities, both ephemeral
// keys, both nonces and the negotiated caps so that a signature over it
// (and a MAC over it, for the password step) cannot be replayed across a
// different run of the handshake.
type TranscriptInputs struct {
	Version           uint8
	ClientIdentityPub []byte
	ServerIdentityPub []byte
	ClientEphPub      []byte
	ServerEphPub      []byte
	NonceC            []byte
	NonceS            []byte
	Caps              uint32
}

// TranscriptHash computes the SHA-256 hash of the canonical handshake
// transcript.
func TranscriptHash(in TranscriptInputs) ([32]byte, error) {
	if len(in.ClientIdentityPub) == 0 || len(in.ServerIdentityPub) == 0 {
		return [32]byte{}, ErrInvalidTranscriptInput
	}
	if len(in.ClientEphPub) == 0 || len(in.ServerEphPub) == 0 {
		return [32]byte{}, ErrInvalidTranscriptInput
	}
	if len(in.NonceC) != 32 || len(in.NonceS) != 32 {
		return [32]byte{}, ErrInvalidTranscriptInput
	}
	fields := [][]byte{in.ClientIdentityPub, in.ServerIdentityPub, in.ClientEphPub, in.ServerEphPub}
	for _, f := range fields {
		if len(f) > 0xffff {
			return [32]byte{}, ErrInvalidTranscriptInput
		}
	}

	prefix := []byte("asciichat-handshake-v1")
	size := len(prefix) + 1 + 4 + 32 + 32
	for _, f := range fields {
		size += 2 + len(f)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	buf = append(buf, in.Version)
	tmp := make([]byte, 4)
	bin.PutU32BE(tmp, in.Caps)
	buf = append(buf, tmp...)
	buf = append(buf, in.NonceC...)
	buf = append(buf, in.NonceS...)
	for _, f := range fields {
		var lenBuf [2]byte
		bin.PutU16BE(lenBuf[:], uint16(len(f)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, f...)
	}

	return sha256.Sum256(buf), nil
}
