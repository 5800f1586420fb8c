// Package transport wraps a net.Conn with the framed protocol codec and,
// once the handshake reaches READY, per-direction AEAD encryption. Before
// READY, packets (handshake messages) cross the wire as plaintext payload
// inside the same outer framing.
package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zfogg/ascii-chat-server/internal/handshake"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

// Conn adapts a net.Conn to handshake.PacketConn and, after Upgrade, to an
// encrypted transport satisfying the same interface.
type Conn struct {
	net.Conn
	maxPayload int

	mu      sync.Mutex
	session *session

	// writeMu serializes WritePacket callers so each packet's nonce
	// counter and its bytes on the wire stay in the same order.
	writeMu sync.Mutex
}

// session holds the installed AEAD keys and per-direction nonce counters.
type session struct {
	send     chacha20poly1305.AEAD
	recv     chacha20poly1305.AEAD
	sendCtr  uint64
	recvCtr  uint64
	recvSeen bool
}

// New wraps conn for handshake-phase (plaintext) use.
func New(conn net.Conn, maxPayload int) *Conn {
	return &Conn{Conn: conn, maxPayload: maxPayload}
}

// Upgrade installs AEAD encryption using keys derived by a completed
// handshake. After Upgrade, ReadPacket/WritePacket transparently
// encrypt/decrypt payloads.
func (c *Conn) Upgrade(keys handshake.AEADKeys) error {
	sendAEAD, err := chacha20poly1305.New(keys.SendKey[:])
	if err != nil {
		return fmt.Errorf("transport: init send AEAD: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(keys.RecvKey[:])
	if err != nil {
		return fmt.Errorf("transport: init recv AEAD: %w", err)
	}

	c.mu.Lock()
	c.session = &session{send: sendAEAD, recv: recvAEAD}
	c.mu.Unlock()
	return nil
}

// nonceFor encodes a monotonic counter into a 12-byte AEAD nonce.
func nonceFor(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// aeadOverhead is the nonce-prefix plus authentication tag added to every
// encrypted payload.
const aeadOverhead = chacha20poly1305.NonceSize + chacha20poly1305.Overhead

// ReadPacket reads and, if the session is upgraded, decrypts one packet.
func (c *Conn) ReadPacket() (*protocol.Packet, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	limit := c.maxPayload
	if sess != nil {
		limit += aeadOverhead
	}

	pkt, err := protocol.ReadPacket(c.Conn, limit)
	if err != nil {
		return nil, err
	}

	if sess == nil {
		return pkt, nil
	}

	if len(pkt.Payload) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("transport: ciphertext shorter than nonce")
	}
	nonce := pkt.Payload[:chacha20poly1305.NonceSize]
	ciphertext := pkt.Payload[chacha20poly1305.NonceSize:]
	counter := binary.BigEndian.Uint64(nonce[4:])

	if sess.recvSeen && counter <= sess.recvCtr {
		return nil, fmt.Errorf("transport: replay or reordered counter %d (last accepted %d)", counter, sess.recvCtr)
	}

	plaintext, err := sess.recv.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: AEAD open failed: %w", err)
	}

	sess.recvCtr = counter
	sess.recvSeen = true
	pkt.Payload = plaintext
	return pkt, nil
}

// WritePacket encrypts (if upgraded) and writes one packet.
func (c *Conn) WritePacket(pkt *protocol.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return protocol.WritePacket(c.Conn, pkt, c.maxPayload)
	}

	sess.sendCtr++
	nonce := nonceFor(sess.sendCtr)
	ciphertext := sess.send.Seal(nil, nonce, pkt.Payload, nil)

	wrapped := &protocol.Packet{
		Type:     pkt.Type,
		SenderID: pkt.SenderID,
		Reserved: pkt.Reserved,
		Payload:  append(nonce, ciphertext...),
	}
	return protocol.WritePacket(c.Conn, wrapped, c.maxPayload+aeadOverhead)
}
