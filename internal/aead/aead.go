// Package aead provides the asymmetric and symmetric cryptographic
// primitives used by the handshake and record layers: X25519 ECDH for key
// agreement, Ed25519 for identity signatures, HKDF-SHA256 for key
// derivation, and XChaCha20-Poly1305 for authenticated encryption.
package aead

import (
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/asciichat/asciichat-go/internal/hkdf"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidPublicKey signals a malformed or wrong-length public key.
	ErrInvalidPublicKey = errors.New("aead: invalid public key")
	// ErrSignatureInvalid signals a failed Ed25519 verification.
	ErrSignatureInvalid = errors.New("aead: signature invalid")
)

// GenIdentity generates a fresh Ed25519 identity keypair.
func GenIdentity() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign produces an Ed25519 signature over msg.
func Sign(sk ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(sk, msg)
}

// Verify checks an Ed25519 signature over msg.
func Verify(pk ed25519.PublicKey, msg []byte, sig []byte) bool {
	if len(pk) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pk, msg, sig)
}

// GenerateEphemeralKeypair creates a per-handshake X25519 keypair.
func GenerateEphemeralKeypair() (priv *ecdh.PrivateKey, pub []byte, err error) {
	priv, err = ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv, priv.PublicKey().Bytes(), nil
}

// ParseEphemeralPublicKey parses a peer's X25519 ephemeral public key.
func ParseEphemeralPublicKey(pub []byte) (*ecdh.PublicKey, error) {
	pk, err := ecdh.X25519().NewPublicKey(pub)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pk, nil
}

// ECDH computes the X25519 shared secret between priv and the peer's
// ephemeral public key.
func ECDH(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey) ([]byte, error) {
	return priv.ECDH(peerPub)
}

// SessionKeys holds the derived bidirectional record keys for a connection.
type SessionKeys struct {
	C2S [32]byte // Client-to-server AEAD key.
	S2C [32]byte // Server-to-client AEAD key.
}

// DeriveSessionKeys expands the ECDH shared secret, bound to the handshake
// transcript hash, into the two directional record keys.
func DeriveSessionKeys(sharedSecret []byte, transcriptHash [32]byte) (SessionKeys, error) {
	ikm := make([]byte, 0, len(sharedSecret)+len(transcriptHash))
	ikm = append(ikm, sharedSecret...)
	ikm = append(ikm, transcriptHash[:]...)

	prk := hkdf.ExtractSHA256(nil, ikm)

	c2s, err := hkdf.ExpandSHA256(prk, []byte("asciichat-v1:c2s:key"), 32)
	if err != nil {
		return SessionKeys{}, err
	}
	s2c, err := hkdf.ExpandSHA256(prk, []byte("asciichat-v1:s2c:key"), 32)
	if err != nil {
		return SessionKeys{}, err
	}

	var out SessionKeys
	copy(out.C2S[:], c2s)
	copy(out.S2C[:], s2c)
	return out, nil
}

// NewXChaCha20Poly1305 constructs the record AEAD with its 24-byte nonce.
func NewXChaCha20Poly1305(key [32]byte) (cipher.AEAD, error) {
	return chacha20poly1305.NewX(key[:])
}
