package knownhosts

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestFirstContactTOFUThenMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pub1, _, _ := ed25519.GenerateKey(nil)

	outcome, err := s.Check("host-a", pub1)
	if err != nil || outcome != Unknown {
		t.Fatalf("expected Unknown, got %v err=%v", outcome, err)
	}
	if err := s.Add("host-a", pub1, 1000); err != nil {
		t.Fatalf("Add: %v", err)
	}
	outcome, err = s.Check("host-a", pub1)
	if err != nil || outcome != Known {
		t.Fatalf("expected Known, got %v err=%v", outcome, err)
	}

	pub2, _, _ := ed25519.GenerateKey(nil)
	outcome, err = s.Check("host-a", pub2)
	if outcome != Mismatch || err == nil {
		t.Fatalf("expected Mismatch, got %v err=%v", outcome, err)
	}

	// Reload from disk: the pin must have persisted.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	outcome, err = reloaded.Check("host-a", pub1)
	if err != nil || outcome != Known {
		t.Fatalf("expected Known after reload, got %v err=%v", outcome, err)
	}
}

func TestLoadIgnoresMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "known_hosts")
	pub, _, _ := ed25519.GenerateKey(nil)
	good := formatLine(Entry{HostID: "host-b", PublicKey: pub, FirstSeen: 1, LastSeen: 2, Pinned: true})
	content := "# a comment\nnot enough fields\n" + good + "\ngarbage garbage garbage garbage garbage\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	outcome, err := s.Check("host-b", pub)
	if err != nil || outcome != Known {
		t.Fatalf("expected Known for host-b, got %v err=%v", outcome, err)
	}
}

func TestLoadMissingFileIsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	pub, _, _ := ed25519.GenerateKey(nil)
	outcome, err := s.Check("host-x", pub)
	if err != nil || outcome != Unknown {
		t.Fatalf("expected Unknown, got %v err=%v", outcome, err)
	}
}
