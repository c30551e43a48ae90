package aead

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	aad := []byte("header")
	pt := []byte("hello world")

	ct, err := Seal(key, 1, DirC2S, aad, pt)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open(key, 1, 0, DirC2S, aad, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("plaintext mismatch: got %q want %q", got, pt)
	}
}

func TestOpenRejectsBitFlips(t *testing.T) {
	var key [32]byte
	aad := []byte("header")
	pt := []byte("hello world")
	ct, _ := Seal(key, 1, DirC2S, aad, pt)

	t.Run("ciphertext", func(t *testing.T) {
		bad := append([]byte{}, ct...)
		bad[0] ^= 0xff
		if _, err := Open(key, 1, 0, DirC2S, aad, bad); err == nil {
			t.Fatalf("expected error on corrupted ciphertext")
		}
	})
	t.Run("aad", func(t *testing.T) {
		if _, err := Open(key, 1, 0, DirC2S, []byte("wrong"), ct); err == nil {
			t.Fatalf("expected error on mismatched aad")
		}
	})
	t.Run("direction", func(t *testing.T) {
		if _, err := Open(key, 1, 0, DirS2C, aad, ct); err == nil {
			t.Fatalf("expected error on mismatched direction/nonce")
		}
	})
}

func TestOpenRejectsReplay(t *testing.T) {
	var key [32]byte
	aad := []byte("header")
	ct, _ := Seal(key, 5, DirC2S, aad, []byte("x"))
	if _, err := Open(key, 5, 5, DirC2S, aad, ct); err != ErrReplay {
		t.Fatalf("expected ErrReplay for seq == lastSeq, got %v", err)
	}
	if _, err := Open(key, 4, 5, DirC2S, aad, ct); err != ErrReplay {
		t.Fatalf("expected ErrReplay for seq < lastSeq, got %v", err)
	}
}

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	shared := bytes.Repeat([]byte{0x11}, 32)
	var th [32]byte
	for i := range th {
		th[i] = byte(i)
	}
	k1, err := DeriveSessionKeys(shared, th)
	if err != nil {
		t.Fatalf("DeriveSessionKeys: %v", err)
	}
	k2, err := DeriveSessionKeys(shared, th)
	if err != nil {
		t.Fatalf("DeriveSessionKeys: %v", err)
	}
	if k1.C2S != k2.C2S || k1.S2C != k2.S2C {
		t.Fatalf("expected deterministic derivation")
	}
	if k1.C2S == k1.S2C {
		t.Fatalf("expected distinct c2s/s2c keys")
	}
}

func TestECDHAgreement(t *testing.T) {
	privA, pubA, err := GenerateEphemeralKeypair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeypair A: %v", err)
	}
	privB, pubB, err := GenerateEphemeralKeypair()
	if err != nil {
		t.Fatalf("GenerateEphemeralKeypair B: %v", err)
	}
	peerB, err := ParseEphemeralPublicKey(pubB)
	if err != nil {
		t.Fatalf("ParseEphemeralPublicKey: %v", err)
	}
	peerA, err := ParseEphemeralPublicKey(pubA)
	if err != nil {
		t.Fatalf("ParseEphemeralPublicKey: %v", err)
	}
	sharedA, err := ECDH(privA, peerB)
	if err != nil {
		t.Fatalf("ECDH A: %v", err)
	}
	sharedB, err := ECDH(privB, peerA)
	if err != nil {
		t.Fatalf("ECDH B: %v", err)
	}
	if !bytes.Equal(sharedA, sharedB) {
		t.Fatalf("expected matching shared secrets")
	}
}

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenIdentity()
	if err != nil {
		t.Fatalf("GenIdentity: %v", err)
	}
	msg := []byte("transcript-bytes")
	sig := Sign(priv, msg)
	if !Verify(pub, msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(pub, []byte("other"), sig) {
		t.Fatalf("expected signature to fail on tampered message")
	}
}
