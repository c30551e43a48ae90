package aead

import (
	"errors"

	"github.com/asciichat/asciichat-go/internal/bin"
)

// ErrReplay indicates seq did not strictly increase for this key.
var ErrReplay = errors.New("aead: replayed or out-of-order sequence")

// ErrOpenFailed indicates AEAD decryption failed (forged or corrupted record).
var ErrOpenFailed = errors.New("aead: open failed")

// Direction selects the 12-byte context string mixed into the nonce so that
// client->server and server->client records never share a nonce space even
// under identical sequence numbers.
type Direction [12]byte

var (
	// DirC2S is the nonce context for client-to-server records.
	DirC2S = Direction{'c', '2', 's', '-', 'r', 'e', 'c', 'o', 'r', 'd', '-', '-'}
	// DirS2C is the nonce context for server-to-client records.
	DirS2C = Direction{'s', '2', 'c', '-', 'r', 'e', 'c', 'o', 'r', 'd', '-', '-'}
)

// buildNonce constructs the 24-byte nonce: a 12-byte zero-extension of seq
// concatenated with the 12-byte direction context, per the wire contract.
func buildNonce(seq uint64, dir Direction) []byte {
	nonce := make([]byte, 24)
	bin.PutU64BE(nonce[4:12], seq)
	copy(nonce[12:24], dir[:])
	return nonce
}

// Seal authenticates and encrypts plaintext under key, seq, and dir. aad is
// typically the packet header with its crc32 field zeroed.
func Seal(key [32]byte, seq uint64, dir Direction, aad []byte, plaintext []byte) ([]byte, error) {
	a, err := NewXChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	nonce := buildNonce(seq, dir)
	return a.Seal(nil, nonce, plaintext, aad), nil
}

// Open verifies and decrypts ciphertext under key, seq, and dir, rejecting
// any seq that does not strictly increase relative to lastSeq.
func Open(key [32]byte, seq uint64, lastSeq uint64, dir Direction, aad []byte, ciphertext []byte) ([]byte, error) {
	if seq <= lastSeq {
		return nil, ErrReplay
	}
	a, err := NewXChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	nonce := buildNonce(seq, dir)
	pt, err := a.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return pt, nil
}
