// Package knownhosts implements the trust-on-first-use known-hosts store:
// a text file pinning each host_id to the public key first seen for it.
package knownhosts

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/asciichat/asciichat-go/internal/base64url"
	"github.com/asciichat/asciichat-go/internal/securefile"
)

// Outcome classifies the result of a Check against the store.
type Outcome int

const (
	// Known means the presented key matches the pinned entry.
	Known Outcome = iota
	// Unknown means host_id has never been seen; TOFU may add it.
	Unknown
	// Mismatch means host_id is pinned to a different key; always fatal.
	Mismatch
)

// ErrMismatch is returned by Check (wrapped) when the presented key
// disagrees with a pinned entry.
var ErrMismatch = errors.New("knownhosts: public key mismatch")

// Entry is one pinned host.
type Entry struct {
	HostID    string
	PublicKey ed25519.PublicKey
	FirstSeen int64
	LastSeen  int64
	Pinned    bool
}

// Store is an in-memory, file-backed known-hosts table. Reads may race a
// concurrent write; writes are serialized and rewrite the file atomically.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
}

// Load reads path (if it exists) into a new Store. A missing file is not an
// error; it is treated as an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]Entry)}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			continue // malformed lines are ignored (logging is the caller's concern)
		}
		s.entries[entry.HostID] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Entry{}, false
	}
	pk, err := base64url.Decode(fields[1])
	if err != nil || len(pk) != ed25519.PublicKeySize {
		return Entry{}, false
	}
	firstSeen, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	lastSeen, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	var pinned bool
	switch fields[4] {
	case "0":
		pinned = false
	case "1":
		pinned = true
	default:
		return Entry{}, false
	}
	return Entry{
		HostID:    fields[0],
		PublicKey: pk,
		FirstSeen: firstSeen,
		LastSeen:  lastSeen,
		Pinned:    pinned,
	}, true
}

func formatLine(e Entry) string {
	pinned := "0"
	if e.Pinned {
		pinned = "1"
	}
	return fmt.Sprintf("%s %s %d %d %s", e.HostID, base64url.Encode(e.PublicKey), e.FirstSeen, e.LastSeen, pinned)
}

// Check reports how pk compares to the pinned entry for hostID, if any.
func (s *Store) Check(hostID string, pk ed25519.PublicKey) (Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[hostID]
	if !ok {
		return Unknown, nil
	}
	if !bytes.Equal(e.PublicKey, pk) {
		return Mismatch, fmt.Errorf("%w: host %q", ErrMismatch, hostID)
	}
	return Known, nil
}

// Add pins hostID to pk (first contact, TOFU) and persists the store.
func (s *Store) Add(hostID string, pk ed25519.PublicKey, nowUnix int64) error {
	s.mu.Lock()
	s.entries[hostID] = Entry{
		HostID:    hostID,
		PublicKey: append(ed25519.PublicKey{}, pk...),
		FirstSeen: nowUnix,
		LastSeen:  nowUnix,
		Pinned:    true,
	}
	entries := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(entries)
}

// Touch updates last_seen for an already-pinned host and persists the store.
func (s *Store) Touch(hostID string, nowUnix int64) error {
	s.mu.Lock()
	e, ok := s.entries[hostID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	e.LastSeen = nowUnix
	s.entries[hostID] = e
	entries := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(entries)
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *Store) persist(entries []Entry) error {
	if s.path == "" {
		return nil
	}
	if err := securefile.MkdirAllOwnerOnly(filepath.Dir(s.path)); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(formatLine(e))
		buf.WriteByte('\n')
	}
	return securefile.WriteFileAtomic(s.path, buf.Bytes(), 0o600)
}
