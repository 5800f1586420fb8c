package handshake

import (
	"crypto/ed25519"

	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

var log = logging.L("handshake")

// PacketConn is the minimal interface the handshake driver needs from a
// connection: read and write one framed packet at a time. The receive
// thread's real connection wrapper satisfies this directly.
type PacketConn interface {
	ReadPacket() (*protocol.Packet, error)
	WritePacket(*protocol.Packet) error
}

// Whitelist reports whether an authenticated client's identity key is
// permitted to connect. A nil Whitelist means "allow any authenticated
// client".
type Whitelist interface {
	Allowed(pub ed25519.PublicKey) bool
}

func expectPacket(conn PacketConn, want protocol.Type) (*protocol.Packet, error) {
	pkt, err := conn.ReadPacket()
	if err != nil {
		return nil, err
	}
	if pkt.Type != want {
		return nil, &Error{Kind: ErrorUnexpectedState, Reason: "expected " + want.String() + ", got " + pkt.Type.String()}
	}
	return pkt, nil
}

// RunServer drives the server side of the handshake to completion over
// conn, using identity as the server's long-term signing key and wl (may
// be nil) to authorize the client's identity key.
func RunServer(ctx *Context, conn PacketConn, identity ed25519.PrivateKey, wl Whitelist) error {
	if err := ctx.expectState(StateInit); err != nil {
		return err
	}

	sig := sign(identity, ctx.EphemeralPub[:])
	kxInit := encodeKXInit(ctx.EphemeralPub, identity.Public().(ed25519.PublicKey), sig)
	if err := conn.WritePacket(&protocol.Packet{Type: protocol.TypeKeyExchangeInit, Payload: kxInit}); err != nil {
		return ctx.Fail(ErrorCryptoFailure, "write KX_INIT: "+err.Error())
	}
	ctx.State = StateKeyExchange

	respPkt, err := expectPacket(conn, protocol.TypeKeyExchangeResp)
	if err != nil {
		return ctx.Fail(ErrorUnexpectedState, err.Error())
	}
	peerEphemeral, err := decodeKXResp(respPkt.Payload)
	if err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}
	ctx.PeerEphemeral = peerEphemeral

	if err := ctx.completeKeyExchange(); err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}

	challenge, err := generateChallenge()
	if err != nil {
		return ctx.Fail(ErrorCryptoFailure, "generate challenge: "+err.Error())
	}
	ctx.challenge = challenge
	if err := conn.WritePacket(&protocol.Packet{Type: protocol.TypeAuthChallenge, Payload: encodeAuthChallenge(challenge)}); err != nil {
		return ctx.Fail(ErrorCryptoFailure, "write AUTH_CHAL: "+err.Error())
	}

	authPkt, err := expectPacket(conn, protocol.TypeAuthResponse)
	if err != nil {
		return ctx.Fail(ErrorUnexpectedState, err.Error())
	}
	clientIdentityPub, clientSig, err := decodeAuthResponse(authPkt.Payload)
	if err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}

	proof := proofMessage(ctx.challenge, ctx.sharedSecret)
	if !verify(clientIdentityPub, proof, clientSig) {
		conn.WritePacket(&protocol.Packet{Type: protocol.TypeAuthFailed, Payload: EncodeAuthFailed(AuthFailedBadSignature, "signature verification failed")})
		return ctx.Fail(ErrorCryptoFailure, "client signature verification failed")
	}

	if wl != nil && !wl.Allowed(clientIdentityPub) {
		conn.WritePacket(&protocol.Packet{Type: protocol.TypeAuthFailed, Payload: EncodeAuthFailed(AuthFailedNotAuthorized, "client key not in whitelist")})
		return ctx.Fail(ErrorNotAuthorized, "client key not in whitelist")
	}

	ctx.PeerIdentityPub = clientIdentityPub

	if err := ctx.deriveKeys(); err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}

	if err := conn.WritePacket(&protocol.Packet{Type: protocol.TypeServerAuthResponse}); err != nil {
		return ctx.Fail(ErrorCryptoFailure, "write SERVER_AUTH_RESP: "+err.Error())
	}

	ctx.State = StateReady
	log.Debug("server handshake complete", "peer", ctx.PeerEndpoint)
	return nil
}

// RunClient drives the client side of the handshake. identity is the
// client's long-term signing key (required; the server always demands
// client authentication). verifyServerIdentity is called once the
// server's KX_INIT is received, before any secret is derived, so the
// caller can consult (and update) a known-hosts store; returning an error
// aborts the handshake with ErrorPeerIdentityChanged semantics left to the
// caller's error.
func RunClient(ctx *Context, conn PacketConn, identity ed25519.PrivateKey, verifyServerIdentity func(pub ed25519.PublicKey) error) error {
	if err := ctx.expectState(StateInit); err != nil {
		return err
	}

	initPkt, err := expectPacket(conn, protocol.TypeKeyExchangeInit)
	if err != nil {
		return ctx.Fail(ErrorUnexpectedState, err.Error())
	}
	serverEphemeral, serverIdentityPub, serverSig, err := decodeKXInit(initPkt.Payload)
	if err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}
	if !verify(serverIdentityPub, serverEphemeral[:], serverSig) {
		return ctx.Fail(ErrorCryptoFailure, "server KX_INIT signature invalid")
	}
	if verifyServerIdentity != nil {
		if err := verifyServerIdentity(serverIdentityPub); err != nil {
			return ctx.Fail(ErrorPeerIdentityChanged, err.Error())
		}
	}
	ctx.PeerIdentityPub = serverIdentityPub
	ctx.PeerEphemeral = serverEphemeral
	ctx.State = StateKeyExchange

	if err := conn.WritePacket(&protocol.Packet{Type: protocol.TypeKeyExchangeResp, Payload: encodeKXResp(ctx.EphemeralPub)}); err != nil {
		return ctx.Fail(ErrorCryptoFailure, "write KX_RESP: "+err.Error())
	}

	if err := ctx.completeKeyExchange(); err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}

	chalPkt, err := expectPacket(conn, protocol.TypeAuthChallenge)
	if err != nil {
		return ctx.Fail(ErrorUnexpectedState, err.Error())
	}
	challenge, err := decodeAuthChallenge(chalPkt.Payload)
	if err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}
	ctx.challenge = challenge

	proof := proofMessage(challenge, ctx.sharedSecret)
	clientSig := sign(identity, proof)
	if err := conn.WritePacket(&protocol.Packet{
		Type:    protocol.TypeAuthResponse,
		Payload: encodeAuthResponse(identity.Public().(ed25519.PublicKey), clientSig),
	}); err != nil {
		return ctx.Fail(ErrorCryptoFailure, "write AUTH_RESP: "+err.Error())
	}

	if err := ctx.deriveKeys(); err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}

	finalPkt, err := conn.ReadPacket()
	if err != nil {
		return ctx.Fail(ErrorCryptoFailure, err.Error())
	}
	switch finalPkt.Type {
	case protocol.TypeServerAuthResponse:
		ctx.State = StateReady
		log.Debug("client handshake complete", "peer", ctx.PeerEndpoint)
		return nil
	case protocol.TypeAuthFailed:
		reason, msg, _ := decodeAuthFailed(finalPkt.Payload)
		kind := ErrorNotAuthorized
		if reason == AuthFailedVersionMismatch {
			kind = ErrorVersionMismatch
		}
		return ctx.Fail(kind, msg)
	default:
		return ctx.Fail(ErrorUnexpectedState, "unexpected packet "+finalPkt.Type.String())
	}
}
