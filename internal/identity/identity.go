// Package identity manages long-lived Ed25519 identity keypairs, persisted
// as JSON key files optionally protected by a bcrypt-pbkdf-derived password.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/asciichat/asciichat-go/internal/aead"
	"github.com/asciichat/asciichat-go/internal/base64url"
	"github.com/asciichat/asciichat-go/internal/securefile"
	"github.com/dchest/bcrypt_pbkdf"
)

// defaultRounds is the bcrypt-pbkdf cost used for new password-protected key files.
const defaultRounds = 16

var (
	// ErrInvalidKeyFile signals a malformed or inconsistent key file.
	ErrInvalidKeyFile = errors.New("identity: invalid key file")
	// ErrPasswordRequired signals a protected key file was loaded without a password.
	ErrPasswordRequired = errors.New("identity: password required")
	// ErrBadPassword signals the password failed to unwrap the private key.
	ErrBadPassword = errors.New("identity: bad password")
)

// Identity is a long-lived Ed25519 signing identity.
type Identity struct {
	KID  string
	Pub  ed25519.PublicKey
	Priv ed25519.PrivateKey
}

// Generate creates a fresh identity with the given key id.
func Generate(kid string) (*Identity, error) {
	pub, priv, err := aead.GenIdentity()
	if err != nil {
		return nil, err
	}
	return &Identity{KID: kid, Pub: pub, Priv: priv}, nil
}

// keyFile is the on-disk JSON layout for a persisted identity.
//
// When Protected is false, PrivateKeyB64 carries the raw Ed25519 private
// key. When true, WrappedPrivateKeyB64 carries it XChaCha20-Poly1305-sealed
// under a key derived from the caller's password via bcrypt-pbkdf.
type keyFile struct {
	KID                  string `json:"kid"`
	PublicKeyB64         string `json:"public_key_b64u"`
	Protected            bool   `json:"protected"`
	SaltB64              string `json:"salt_b64u,omitempty"`
	Rounds               int    `json:"rounds,omitempty"`
	NonceB64             string `json:"nonce_b64u,omitempty"`
	PrivateKeyB64        string `json:"private_key_b64u,omitempty"`
	WrappedPrivateKeyB64 string `json:"wrapped_private_key_b64u,omitempty"`
}

// Save writes id to path as JSON, owner-only permissions, atomically. When
// password is non-empty the private key is wrapped with bcrypt-pbkdf.
func Save(path string, id *Identity, password string) error {
	if err := securefile.MkdirAllOwnerOnly(filepath.Dir(path)); err != nil {
		return err
	}
	kf := keyFile{
		KID:          id.KID,
		PublicKeyB64: base64url.Encode(id.Pub),
	}
	if password == "" {
		kf.PrivateKeyB64 = base64url.Encode(id.Priv)
	} else {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		nonce := make([]byte, 24)
		if _, err := rand.Read(nonce); err != nil {
			return err
		}
		wrapKey, err := deriveWrapKey(password, salt, defaultRounds)
		if err != nil {
			return err
		}
		a, err := aead.NewXChaCha20Poly1305(wrapKey)
		if err != nil {
			return err
		}
		ct := a.Seal(nil, nonce, id.Priv, []byte(id.KID))
		kf.Protected = true
		kf.SaltB64 = base64url.Encode(salt)
		kf.Rounds = defaultRounds
		kf.NonceB64 = base64url.Encode(nonce)
		kf.WrappedPrivateKeyB64 = base64url.Encode(ct)
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return securefile.WriteFileAtomic(path, data, 0o600)
}

// Load reads an identity from path. passwordFn is invoked only if the file
// is password-protected; it should prompt the user and return the typed
// password.
func Load(path string, passwordFn func() (string, error)) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, ErrInvalidKeyFile
	}
	if kf.KID == "" || kf.PublicKeyB64 == "" {
		return nil, ErrInvalidKeyFile
	}
	pub, err := base64url.Decode(kf.PublicKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeyFile
	}

	if !kf.Protected {
		priv, err := base64url.Decode(kf.PrivateKeyB64)
		if err != nil || len(priv) != ed25519.PrivateKeySize {
			return nil, ErrInvalidKeyFile
		}
		return &Identity{KID: kf.KID, Pub: pub, Priv: priv}, nil
	}

	if passwordFn == nil {
		return nil, ErrPasswordRequired
	}
	password, err := passwordFn()
	if err != nil {
		return nil, err
	}
	salt, err := base64url.Decode(kf.SaltB64)
	if err != nil {
		return nil, ErrInvalidKeyFile
	}
	nonce, err := base64url.Decode(kf.NonceB64)
	if err != nil {
		return nil, ErrInvalidKeyFile
	}
	ct, err := base64url.Decode(kf.WrappedPrivateKeyB64)
	if err != nil {
		return nil, ErrInvalidKeyFile
	}
	wrapKey, err := deriveWrapKey(password, salt, kf.Rounds)
	if err != nil {
		return nil, err
	}
	a, err := aead.NewXChaCha20Poly1305(wrapKey)
	if err != nil {
		return nil, err
	}
	priv, err := a.Open(nil, nonce, ct, []byte(kf.KID))
	if err != nil {
		return nil, ErrBadPassword
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyFile
	}
	return &Identity{KID: kf.KID, Pub: pub, Priv: priv}, nil
}

func deriveWrapKey(password string, salt []byte, rounds int) ([32]byte, error) {
	var out [32]byte
	if rounds <= 0 {
		rounds = defaultRounds
	}
	key, err := bcrypt_pbkdf.Key([]byte(password), salt, rounds, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], key)
	return out, nil
}
