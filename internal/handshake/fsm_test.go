package handshake

import (
	"bytes"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/asciichat/asciichat-go/internal/identity"
	"github.com/asciichat/asciichat-go/internal/knownhosts"
)

func newStore(t *testing.T) *knownhosts.Store {
	t.Helper()
	s, err := knownhosts.Load(filepath.Join(t.TempDir(), "known_hosts"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoopbackHandshakeNoPassword(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientIdent, err := identity.Generate("client-1")
	if err != nil {
		t.Fatalf("Generate client: %v", err)
	}
	serverIdent, err := identity.Generate("server-1")
	if err != nil {
		t.Fatalf("Generate server: %v", err)
	}

	store := newStore(t)

	type result struct {
		sess *Session
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		sess, err := ClientHandshake(clientConn, clientIdent, "server-host", store, ClientOptions{Caps: CapVideo | CapAudio})
		clientCh <- result{sess, err}
	}()
	go func() {
		sess, err := ServerHandshake(serverConn, serverIdent, ServerOptions{ServerCaps: CapVideo | CapAudio | CapServerGrid})
		serverCh <- result{sess, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	if cr.err != nil {
		t.Fatalf("client handshake: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("server handshake: %v", sr.err)
	}
	if cr.sess.State() != Established || sr.sess.State() != Established {
		t.Fatalf("expected Established on both sides, got client=%v server=%v", cr.sess.State(), sr.sess.State())
	}
	if !bytes.Equal(cr.sess.Keys.C2S[:], sr.sess.Keys.C2S[:]) || !bytes.Equal(cr.sess.Keys.S2C[:], sr.sess.Keys.S2C[:]) {
		t.Fatalf("derived session keys diverged between client and server")
	}
	if cr.sess.ServerCaps&CapServerGrid == 0 {
		t.Fatalf("client did not observe server-advertised caps")
	}
}

func TestLoopbackHandshakeWithPassword(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientIdent, _ := identity.Generate("client-1")
	serverIdent, _ := identity.Generate("server-1")
	store := newStore(t)

	type result struct {
		sess *Session
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		sess, err := ClientHandshake(clientConn, clientIdent, "server-host", store, ClientOptions{Password: "hunter2"})
		clientCh <- result{sess, err}
	}()
	go func() {
		sess, err := ServerHandshake(serverConn, serverIdent, ServerOptions{RequirePassword: true, Password: "hunter2", BcryptRounds: 4})
		serverCh <- result{sess, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	if cr.err != nil {
		t.Fatalf("client handshake: %v", cr.err)
	}
	if sr.err != nil {
		t.Fatalf("server handshake: %v", sr.err)
	}
	if cr.sess.State() != Established {
		t.Fatalf("expected Established, got %v", cr.sess.State())
	}
}

func TestLoopbackHandshakeWrongPasswordFails(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientIdent, _ := identity.Generate("client-1")
	serverIdent, _ := identity.Generate("server-1")
	store := newStore(t)

	type result struct {
		sess *Session
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		sess, err := ClientHandshake(clientConn, clientIdent, "server-host", store, ClientOptions{Password: "wrong"})
		clientCh <- result{sess, err}
	}()
	go func() {
		sess, err := ServerHandshake(serverConn, serverIdent, ServerOptions{RequirePassword: true, Password: "hunter2", BcryptRounds: 4})
		serverCh <- result{sess, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	if !errors.Is(cr.err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed on client, got %v", cr.err)
	}
	if !errors.Is(sr.err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed on server, got %v", sr.err)
	}
}

func TestClientDetectsKnownHostMismatch(t *testing.T) {
	store := newStore(t)
	pinnedIdent, _ := identity.Generate("server-pinned")
	if err := store.Add("server-host", pinnedIdent.Pub, 1000); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientIdent, _ := identity.Generate("client-1")
	impostorIdent, _ := identity.Generate("server-impostor")

	type result struct {
		sess *Session
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		sess, err := ClientHandshake(clientConn, clientIdent, "server-host", store, ClientOptions{})
		clientCh <- result{sess, err}
	}()
	go func() {
		sess, err := ServerHandshake(serverConn, impostorIdent, ServerOptions{})
		serverCh <- result{sess, err}
	}()

	cr := <-clientCh
	// The server is left writing SESSION_ESTABLISHED into a pipe nobody
	// reads; the client has already bailed out before that point, and the
	// server goroutine's result is not meaningful to this test.
	_ = serverCh
	if !errors.Is(cr.err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", cr.err)
	}
}
