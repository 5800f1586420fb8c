// Package handshake implements the authenticated key-exchange state
// machine that brings a connection from INIT to READY: X25519 ephemeral
// ECDH, HKDF-derived per-direction AEAD keys, and Ed25519 signature-based
// mutual authentication. Both server and client roles are driven inline by
// the caller (the receive thread, on the server side) one packet at a time.
package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"io"
)

// Role identifies which side of the handshake this context drives.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// State is a step in the handshake state machine.
type State int

const (
	StateInit State = iota
	StateKeyExchange
	StateAuthenticating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateKeyExchange:
		return "KEY_EXCHANGE"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrorKind classifies why a handshake failed.
type ErrorKind int

const (
	ErrorUnexpectedState ErrorKind = iota
	ErrorNotAuthorized
	ErrorPeerIdentityChanged
	ErrorCryptoFailure
	ErrorVersionMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUnexpectedState:
		return "UnexpectedState"
	case ErrorNotAuthorized:
		return "NotAuthorized"
	case ErrorPeerIdentityChanged:
		return "PeerIdentityChanged"
	case ErrorCryptoFailure:
		return "CryptoFailure"
	case ErrorVersionMismatch:
		return "VersionMismatch"
	default:
		return "Unknown"
	}
}

// Error reports a handshake failure with a classified kind.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake: %s: %s", e.Kind, e.Reason)
}

// AEADKeys holds the two per-direction keys derived on READY.
type AEADKeys struct {
	SendKey [chacha20poly1305.KeySize]byte
	RecvKey [chacha20poly1305.KeySize]byte
}

// Zero overwrites both keys with zero bytes.
func (k *AEADKeys) Zero() {
	for i := range k.SendKey {
		k.SendKey[i] = 0
	}
	for i := range k.RecvKey {
		k.RecvKey[i] = 0
	}
}

// Context carries all handshake state for one connection from creation to
// READY/FAILED. IdentityPub is this side's long-term key and
// PeerIdentityPub the other side's, so a completed handshake can report
// the verified peer identity whichever Role it ran.
type Context struct {
	Role  Role
	State State

	ephemeralPriv [curve25519.ScalarSize]byte
	EphemeralPub  [curve25519.PointSize]byte
	PeerEphemeral [curve25519.PointSize]byte

	sharedSecret [curve25519.PointSize]byte

	// PeerEndpoint anchors known-hosts lookups on the client side.
	PeerEndpoint string

	// IdentityPriv/IdentityPub are this side's long-term Ed25519 signing
	// keypair, used to prove identity. Both roles need one: the server
	// signs the client's challenge, and RunServer always demands client
	// authentication.
	IdentityPriv ed25519.PrivateKey
	IdentityPub  ed25519.PublicKey

	// PeerIdentityPub is the verified long-term public key of the other
	// side, populated once authentication succeeds.
	PeerIdentityPub ed25519.PublicKey

	challenge []byte

	Keys AEADKeys

	FailReason string
}

// NewContext creates a fresh handshake context for the given role. identity
// may be nil when this side does not authenticate with a long-term key.
func NewContext(role Role, identity ed25519.PrivateKey) (*Context, error) {
	ctx := &Context{Role: role, State: StateInit, IdentityPriv: identity}
	if identity != nil {
		ctx.IdentityPub = identity.Public().(ed25519.PublicKey)
	}

	if _, err := io.ReadFull(rand.Reader, ctx.ephemeralPriv[:]); err != nil {
		return nil, fmt.Errorf("handshake: generate ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(ctx.ephemeralPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("handshake: derive ephemeral public key: %w", err)
	}
	copy(ctx.EphemeralPub[:], pub)

	return ctx, nil
}

// expectState returns an UnexpectedState error if the context is not in
// want, leaving the context unchanged.
func (c *Context) expectState(want State) error {
	if c.State != want {
		return &Error{Kind: ErrorUnexpectedState, Reason: fmt.Sprintf("expected %s, in %s", want, c.State)}
	}
	return nil
}

// completeKeyExchange computes the shared secret and advances to
// AUTHENTICATING. Caller must have set PeerEphemeral first.
func (c *Context) completeKeyExchange() error {
	secret, err := curve25519.X25519(c.ephemeralPriv[:], c.PeerEphemeral[:])
	if err != nil {
		return &Error{Kind: ErrorCryptoFailure, Reason: err.Error()}
	}
	copy(c.sharedSecret[:], secret)
	c.State = StateAuthenticating
	return nil
}

// transcript is the input to HKDF: both ephemeral public keys in a fixed
// order (the client's key first) so both sides derive identical keys.
func (c *Context) transcript() []byte {
	t := make([]byte, 0, 2*curve25519.PointSize)
	if c.Role == RoleServer {
		t = append(t, c.PeerEphemeral[:]...)
		t = append(t, c.EphemeralPub[:]...)
	} else {
		t = append(t, c.EphemeralPub[:]...)
		t = append(t, c.PeerEphemeral[:]...)
	}
	return t
}

// deriveKeys runs HKDF-SHA256 over the shared secret to produce two
// directional AEAD keys: client->server and server->client. Each role
// picks its own Send/Recv mapping.
func (c *Context) deriveKeys() error {
	kdf := hkdf.New(newSHA256, c.sharedSecret[:], c.transcript(), []byte("ascii-chat transport keys v1"))

	var clientToServer, serverToClient [chacha20poly1305.KeySize]byte
	if _, err := io.ReadFull(kdf, clientToServer[:]); err != nil {
		return &Error{Kind: ErrorCryptoFailure, Reason: "derive client->server key: " + err.Error()}
	}
	if _, err := io.ReadFull(kdf, serverToClient[:]); err != nil {
		return &Error{Kind: ErrorCryptoFailure, Reason: "derive server->client key: " + err.Error()}
	}

	if c.Role == RoleServer {
		c.Keys.SendKey = serverToClient
		c.Keys.RecvKey = clientToServer
	} else {
		c.Keys.SendKey = clientToServer
		c.Keys.RecvKey = serverToClient
	}

	// The raw shared secret is no longer needed once directional keys
	// are derived.
	for i := range c.sharedSecret {
		c.sharedSecret[i] = 0
	}
	return nil
}

// Zeroize overwrites all secret material. Call after the keys have been
// transferred into the slot's transport state.
func (c *Context) Zeroize() {
	for i := range c.ephemeralPriv {
		c.ephemeralPriv[i] = 0
	}
	for i := range c.sharedSecret {
		c.sharedSecret[i] = 0
	}
	c.challenge = nil
}

// Fail transitions the context to FAILED with the given reason and returns
// the corresponding error.
func (c *Context) Fail(kind ErrorKind, reason string) error {
	c.State = StateFailed
	c.FailReason = reason
	return &Error{Kind: kind, Reason: reason}
}
