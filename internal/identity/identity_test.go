package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadUnprotected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id.json")

	id, err := Generate("node-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := Save(path, id, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.KID != id.KID || string(got.Pub) != string(id.Pub) || string(got.Priv) != string(id.Priv) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSaveLoadPasswordProtected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id.json")

	id, err := Generate("node-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := Save(path, id, "correct horse"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path, func() (string, error) { return "correct horse", nil })
	if err != nil {
		t.Fatalf("Load with correct password: %v", err)
	}
	if string(got.Priv) != string(id.Priv) {
		t.Fatalf("private key mismatch after unwrap")
	}

	if _, err := Load(path, func() (string, error) { return "wrong", nil }); err != ErrBadPassword {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}

	if _, err := Load(path, nil); err != ErrPasswordRequired {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, nil); err != ErrInvalidKeyFile {
		t.Fatalf("expected ErrInvalidKeyFile, got %v", err)
	}
}
