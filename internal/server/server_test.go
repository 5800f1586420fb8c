package server

import (
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/zfogg/ascii-chat-server/internal/config"
	"github.com/zfogg/ascii-chat-server/internal/handshake"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
	"github.com/zfogg/ascii-chat-server/internal/render"
	"github.com/zfogg/ascii-chat-server/internal/transport"
)

func testServer(t *testing.T, maxClients int) (*Server, ed25519.PrivateKey) {
	t.Helper()
	cfg := config.Default()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.MaxClients = maxClients

	_, identity, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	srv := New(cfg, identity, nil, render.Passthrough{}, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return srv, identity
}

func dialAndHandshake(t *testing.T, addr net.Addr, maxPayload int) *transport.Conn {
	t.Helper()
	conn, err := net.Dial(addr.Network(), addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	c := transport.New(conn, maxPayload)
	_, clientIdentityPriv, _ := ed25519.GenerateKey(nil)
	ctx, err := handshake.NewContext(handshake.RoleClient, clientIdentityPriv)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if err := handshake.RunClient(ctx, c, clientIdentityPriv, nil); err != nil {
		t.Fatalf("RunClient: %v", err)
	}
	if err := c.Upgrade(ctx.Keys); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	return c
}

func TestServeAdmitsConnectionAndHandshakes(t *testing.T) {
	srv, _ := testServer(t, 4)
	defer srv.Close()

	go srv.Serve()

	c := dialAndHandshake(t, srv.Addr(), srv.slotConfig().MaxPayloadBytes)
	defer c.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if srv.ActiveCount() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if srv.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", srv.ActiveCount())
	}
}

func TestCleanupReclaimsSlotAfterDisconnect(t *testing.T) {
	srv, _ := testServer(t, 4)
	defer srv.Close()

	go srv.Serve()

	c := dialAndHandshake(t, srv.Addr(), srv.slotConfig().MaxPayloadBytes)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.ActiveCount() != 1 {
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.WritePacket(&protocol.Packet{Type: protocol.TypeClientLeave}); err != nil {
		t.Fatalf("write client leave: %v", err)
	}
	c.Close()

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.ActiveCount() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ActiveCount() != 0 {
		t.Fatal("expected slot reclaimed after client left")
	}

	srv.mu.RLock()
	defer srv.mu.RUnlock()
	for _, slot := range srv.slots {
		if slot != nil {
			t.Fatal("expected cleanup to nil out the freed slot")
		}
	}
}

func TestMaxClientsCapEnforcedByLimitListener(t *testing.T) {
	srv, _ := testServer(t, 1)
	defer srv.Close()

	go srv.Serve()

	c1 := dialAndHandshake(t, srv.Addr(), srv.slotConfig().MaxPayloadBytes)
	defer c1.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.ActiveCount() != 1 {
		time.Sleep(5 * time.Millisecond)
	}

	conn, err := net.DialTimeout(srv.Addr().Network(), srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected second connection to stall or be refused under LimitListener")
	}
}

func TestShutdownClosesActiveSlots(t *testing.T) {
	srv, _ := testServer(t, 4)

	go srv.Serve()

	c := dialAndHandshake(t, srv.Addr(), srv.slotConfig().MaxPayloadBytes)
	defer c.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && srv.ActiveCount() != 1 {
		time.Sleep(5 * time.Millisecond)
	}

	srv.ShutdownToken().Trigger()
	srv.Close()
	srv.Shutdown()

	if srv.ActiveCount() != 0 {
		t.Fatal("expected no active clients after Shutdown")
	}
}
