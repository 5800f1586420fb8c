package handshake

import (
	"bytes"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

// pipeConn adapts a net.Conn to PacketConn using the framed codec.
type pipeConn struct {
	net.Conn
	maxPayload int
}

func (p *pipeConn) ReadPacket() (*protocol.Packet, error) {
	return protocol.ReadPacket(p.Conn, p.maxPayload)
}

func (p *pipeConn) WritePacket(pkt *protocol.Packet) error {
	return protocol.WritePacket(p.Conn, pkt, p.maxPayload)
}

func newPipe() (*pipeConn, *pipeConn) {
	a, b := net.Pipe()
	return &pipeConn{Conn: a, maxPayload: 1 << 20}, &pipeConn{Conn: b, maxPayload: 1 << 20}
}

type staticWhitelist struct {
	allowed ed25519.PublicKey
}

func (w staticWhitelist) Allowed(pub ed25519.PublicKey) bool {
	return bytes.Equal(pub, w.allowed)
}

func TestHandshakeSymmetry(t *testing.T) {
	serverIdentityPub, serverIdentityPriv, _ := ed25519.GenerateKey(nil)
	clientIdentityPub, clientIdentityPriv, _ := ed25519.GenerateKey(nil)

	serverConn, clientConn := newPipe()

	serverCtx, err := NewContext(RoleServer, serverIdentityPriv)
	if err != nil {
		t.Fatalf("NewContext(server): %v", err)
	}
	clientCtx, err := NewContext(RoleClient, clientIdentityPriv)
	if err != nil {
		t.Fatalf("NewContext(client): %v", err)
	}

	wl := staticWhitelist{allowed: clientIdentityPub}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- RunServer(serverCtx, serverConn, serverIdentityPriv, wl)
	}()

	clientErr := make(chan error, 1)
	go func() {
		clientErr <- RunClient(clientCtx, clientConn, clientIdentityPriv, func(pub ed25519.PublicKey) error {
			if !bytes.Equal(pub, serverIdentityPub) {
				t.Errorf("server identity mismatch")
			}
			return nil
		})
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Fatalf("RunServer: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunServer did not complete")
	}

	select {
	case err := <-clientErr:
		if err != nil {
			t.Fatalf("RunClient: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunClient did not complete")
	}

	if serverCtx.State != StateReady {
		t.Fatalf("server state = %v, want READY", serverCtx.State)
	}
	if clientCtx.State != StateReady {
		t.Fatalf("client state = %v, want READY", clientCtx.State)
	}

	if serverCtx.Keys.SendKey != clientCtx.Keys.RecvKey {
		t.Fatal("server send key != client recv key")
	}
	if serverCtx.Keys.RecvKey != clientCtx.Keys.SendKey {
		t.Fatal("server recv key != client send key")
	}

	if !bytes.Equal(serverCtx.PeerIdentityPub, clientIdentityPub) {
		t.Fatal("server did not record the client's identity key")
	}
	if !bytes.Equal(clientCtx.PeerIdentityPub, serverIdentityPub) {
		t.Fatal("client did not record the server's identity key")
	}
}

func TestHandshakeWhitelistRejection(t *testing.T) {
	_, serverIdentityPriv, _ := ed25519.GenerateKey(nil)
	_, clientIdentityPriv, _ := ed25519.GenerateKey(nil)
	otherIdentityPub, _, _ := ed25519.GenerateKey(nil)

	serverConn, clientConn := newPipe()

	serverCtx, _ := NewContext(RoleServer, serverIdentityPriv)
	clientCtx, _ := NewContext(RoleClient, clientIdentityPriv)

	wl := staticWhitelist{allowed: otherIdentityPub}

	serverErr := make(chan error, 1)
	go func() { serverErr <- RunServer(serverCtx, serverConn, serverIdentityPriv, wl) }()

	clientErr := make(chan error, 1)
	go func() { clientErr <- RunClient(clientCtx, clientConn, clientIdentityPriv, nil) }()

	err := <-serverErr
	if err == nil {
		t.Fatal("expected server to reject non-whitelisted client")
	}
	hsErr, ok := err.(*Error)
	if !ok || hsErr.Kind != ErrorNotAuthorized {
		t.Fatalf("got %v, want ErrorNotAuthorized", err)
	}

	if cerr := <-clientErr; cerr == nil {
		t.Fatal("expected client to observe AUTH_FAILED")
	}
}

func TestHandshakeUnexpectedStateLeavesContextUnchanged(t *testing.T) {
	_, identityPriv, _ := ed25519.GenerateKey(nil)
	ctx, err := NewContext(RoleServer, identityPriv)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx.State = StateAuthenticating

	if err := ctx.expectState(StateInit); err == nil {
		t.Fatal("expected UnexpectedState error")
	}
	if ctx.State != StateAuthenticating {
		t.Fatalf("state changed despite failed expectation: %v", ctx.State)
	}
}
