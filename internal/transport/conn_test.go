package transport

import (
	"net"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zfogg/ascii-chat-server/internal/handshake"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

const testMaxPayload = 4096

func pairedKeys() (a, b handshake.AEADKeys) {
	var k1, k2 [chacha20poly1305.KeySize]byte
	for i := range k1 {
		k1[i] = byte(i)
		k2[i] = byte(255 - i)
	}
	// a sends with k1, receives with k2; b is the mirror so a's send key is
	// b's recv key and vice versa, the same arrangement a real handshake
	// produces for the two sides of one session.
	a = handshake.AEADKeys{SendKey: k1, RecvKey: k2}
	b = handshake.AEADKeys{SendKey: k2, RecvKey: k1}
	return a, b
}

func newUpgradedPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	connA := New(c1, testMaxPayload)
	connB := New(c2, testMaxPayload)

	keysA, keysB := pairedKeys()
	if err := connA.Upgrade(keysA); err != nil {
		t.Fatalf("Upgrade A: %v", err)
	}
	if err := connB.Upgrade(keysB); err != nil {
		t.Fatalf("Upgrade B: %v", err)
	}
	return connA, connB
}

func TestEncryptedRoundTrip(t *testing.T) {
	connA, connB := newUpgradedPair(t)
	defer connA.Close()
	defer connB.Close()

	sent := &protocol.Packet{Type: protocol.TypePing, SenderID: 7, Payload: []byte("hello")}

	done := make(chan error, 1)
	go func() { done <- connA.WritePacket(sent) }()

	got, err := connB.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	if got.Type != sent.Type || got.SenderID != sent.SenderID || string(got.Payload) != string(sent.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, sent)
	}
}

func TestEncryptedRoundTripBothDirections(t *testing.T) {
	connA, connB := newUpgradedPair(t)
	defer connA.Close()
	defer connB.Close()

	aToB := &protocol.Packet{Type: protocol.TypeAudioFrame, SenderID: 1, Payload: []byte("a->b")}
	bToA := &protocol.Packet{Type: protocol.TypeAudioFrame, SenderID: 2, Payload: []byte("b->a")}

	errs := make(chan error, 2)
	go func() { errs <- connA.WritePacket(aToB) }()
	go func() { errs <- connB.WritePacket(bToA) }()

	gotAtB, err := connB.ReadPacket()
	if err != nil {
		t.Fatalf("B ReadPacket: %v", err)
	}
	gotAtA, err := connA.ReadPacket()
	if err != nil {
		t.Fatalf("A ReadPacket: %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("write error: %v", err)
	}

	if string(gotAtB.Payload) != "a->b" {
		t.Fatalf("B got payload %q, want a->b", gotAtB.Payload)
	}
	if string(gotAtA.Payload) != "b->a" {
		t.Fatalf("A got payload %q, want b->a", gotAtA.Payload)
	}
}

func TestReplayedCounterIsRejected(t *testing.T) {
	wireConnA, wireConnB := net.Pipe()
	ca := New(wireConnA, testMaxPayload)
	cb := New(wireConnB, testMaxPayload)
	keysA, keysB := pairedKeys()
	if err := ca.Upgrade(keysA); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if err := cb.Upgrade(keysB); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	defer ca.Close()
	defer cb.Close()

	go func() { _ = ca.WritePacket(&protocol.Packet{Type: protocol.TypePing, Payload: []byte("a")}) }()
	if _, err := cb.ReadPacket(); err != nil {
		t.Fatalf("first accepted read: %v", err)
	}

	// Force the sender's counter backward to replay counter 1.
	ca.session.sendCtr = 0
	writeErr := make(chan error, 1)
	go func() { writeErr <- ca.WritePacket(&protocol.Packet{Type: protocol.TypePing, Payload: []byte("replay")}) }()

	if _, err := cb.ReadPacket(); err == nil {
		t.Fatal("expected replayed counter to be rejected, got nil error")
	}
	<-writeErr
}

func TestPlaintextPassthroughBeforeUpgrade(t *testing.T) {
	c1, c2 := net.Pipe()
	connA := New(c1, testMaxPayload)
	connB := New(c2, testMaxPayload)
	defer connA.Close()
	defer connB.Close()

	sent := &protocol.Packet{Type: protocol.TypeKeyExchangeInit, Payload: []byte("plaintext")}
	go func() { _ = connA.WritePacket(sent) }()

	got, err := connB.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if string(got.Payload) != "plaintext" {
		t.Fatalf("got payload %q, want plaintext", got.Payload)
	}
}
