package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/zfogg/ascii-chat-server/internal/audit"
	"github.com/zfogg/ascii-chat-server/internal/handshake"
	"github.com/zfogg/ascii-chat-server/internal/health"
	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
)

// Identity is the server's long-term signing key and the client whitelist
// used to authorize incoming connections.
type Identity struct {
	Key       ed25519.PrivateKey
	Whitelist handshake.Whitelist
}

// Run drives the slot for its entire lifetime: it performs the handshake
// inline, then (on success) spawns the send, video-render, and
// audio-render threads and runs the receive loop until a fatal error,
// timeout, peer close, or shutdown request. It returns once every thread
// it started has exited.
func (s *Slot) Run(identity Identity) {
	s.auditLog(audit.EventClientConnected, map[string]any{"peer": s.PeerEndpoint})
	defer func() {
		s.sendTerminationIfRequested()
		s.active.Store(false)
		s.conn.Close()
		s.auditLog(audit.EventClientDisconnected, map[string]any{"peer": s.PeerEndpoint})
	}()

	if !s.cfg.EncryptionEnabled {
		// Plaintext mode: no key exchange, no authentication, no AEAD
		// upgrade. s.conn stays in its unupgraded (plaintext) state, so
		// ReadPacket/WritePacket pass payloads through unmodified. Intended
		// for local testing only (server's encryption-disable flag), per
		// the unencrypted single-client scenario.
		s.logger().Warn("encryption disabled for this session, skipping handshake", "peer", s.PeerEndpoint)
		s.auditLog(audit.EventHandshakeOK, map[string]any{"peer": s.PeerEndpoint, "encrypted": false})
		s.cfg.Health.Update("handshake", health.Healthy, "encryption disabled")
	} else {
		hctx, err := handshake.NewContext(handshake.RoleServer, identity.Key)
		if err != nil {
			s.logger().Error("handshake context init failed", logging.KeyError, err.Error())
			s.cfg.Health.Update("handshake", health.Degraded, err.Error())
			return
		}
		hctx.PeerEndpoint = s.PeerEndpoint
		s.handshakeCtx = hctx

		if err := handshake.RunServer(hctx, s.conn, identity.Key, identity.Whitelist); err != nil {
			s.logger().Warn("handshake failed", "reason", err.Error())
			s.auditLog(audit.EventHandshakeFailed, map[string]any{"reason": err.Error()})
			s.setDisconnectReason(audit.EventHandshakeFailed)
			s.cfg.Health.Update("handshake", health.Degraded, err.Error())
			return
		}

		if err := s.conn.Upgrade(hctx.Keys); err != nil {
			s.logger().Error("transport upgrade failed", logging.KeyError, err.Error())
			s.cfg.Health.Update("handshake", health.Degraded, err.Error())
			return
		}
		hctx.Keys.Zero()
		hctx.Zeroize()
		s.logger().Info("handshake complete", "peer", s.PeerEndpoint)
		s.auditLog(audit.EventHandshakeOK, map[string]any{"peer": s.PeerEndpoint})
		s.cfg.Health.Update("handshake", health.Healthy, "")
	}

	var wg conc.WaitGroup
	wg.Go(s.sendLoop)
	wg.Go(s.videoRenderLoop)
	wg.Go(s.audioRenderLoop)

	s.receiveLoop()

	s.RequestShutdown()
	s.audioOut.Close()
	wg.Wait()
}

// receiveLoop reads packets until a fatal error, a keep-alive timeout, a
// requested leave, shutdown, or peer close. A fatal decode or integrity
// failure is confined to this slot: it returns, and Run's deferred cleanup
// clears active and closes the connection.
func (s *Slot) receiveLoop() {
	for {
		// The deadline is armed before the shutdown check so that a
		// RequestShutdown racing with this iteration still expires the read.
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.KeepAliveTimeout))
		if s.ShuttingDown() {
			return
		}

		pkt, err := s.conn.ReadPacket()
		if err != nil {
			if s.ShuttingDown() {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger().Info("peer closed connection")
				return
			}
			if isTimeout(err) {
				s.logger().Warn("keep-alive timeout exceeded")
				return
			}
			var bfe *protocol.BadFrameError
			if errors.As(err, &bfe) {
				s.protocolDisconnectRequested.Store(true)
				s.logger().Warn("protocol error, disconnecting", "reason", bfe.Error())
				s.auditLog(audit.EventProtocolError, map[string]any{"reason": bfe.Error()})
				s.setDisconnectReason(audit.EventProtocolError)
				return
			}
			s.logger().Warn("read error", logging.KeyError, err.Error())
			return
		}

		if pkt.Type == protocol.TypeClientLeave {
			s.logger().Info("client requested leave")
			return
		}

		if err := s.dispatch(pkt); err != nil {
			s.logger().Warn("dispatch error, disconnecting", logging.KeyError, err.Error())
			s.protocolDisconnectRequested.Store(true)
			s.setDisconnectReason(audit.EventProtocolError)
			return
		}
	}
}

// sendTerminationIfRequested sends a best-effort CLIENT_LEAVE packet when a
// protocol-level error flagged this session for disconnect, so the peer
// learns the session is ending instead of just seeing the socket close. The
// write error is ignored: by this point the connection may already be
// unusable, and there is nothing left to do about it. The write is bounded
// by terminationWriteTimeout so a peer that stopped reading cannot hold up
// slot teardown.
func (s *Slot) sendTerminationIfRequested() {
	if !s.protocolDisconnectRequested.Load() {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(terminationWriteTimeout))
	_ = s.conn.WritePacket(&protocol.Packet{Type: protocol.TypeClientLeave, SenderID: s.ClientID})
}

// terminationWriteTimeout bounds the best-effort termination write.
const terminationWriteTimeout = 200 * time.Millisecond

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// dispatch routes one decrypted packet to the per-client state mutator
// named by its type.
func (s *Slot) dispatch(pkt *protocol.Packet) error {
	switch pkt.Type {
	case protocol.TypeClientJoin:
		cj, err := protocol.DecodeClientJoin(pkt.Payload)
		if err != nil {
			return err
		}
		if cj.Major != protocol.ProtocolMajor {
			msg := fmt.Sprintf("server requires protocol major version %d, client sent %d", protocol.ProtocolMajor, cj.Major)
			s.conn.WritePacket(&protocol.Packet{
				Type:    protocol.TypeAuthFailed,
				Payload: handshake.EncodeAuthFailed(handshake.AuthFailedVersionMismatch, msg),
			})
			return fmt.Errorf("client join: major version %d unsupported", cj.Major)
		}
		return nil

	case protocol.TypeCapabilities:
		bits, err := protocol.DecodeCapabilities(pkt.Payload)
		if err != nil {
			return err
		}
		s.SetCapabilities(bits)
		s.SetSendingVideo(bits&protocol.CapVideo != 0)
		s.SetSendingAudio(bits&protocol.CapAudio != 0)
		return nil

	case protocol.TypeDisplayName:
		name := string(protocol.EncodeDisplayName(string(pkt.Payload)))
		if s.cfg.CheckDisplayName != nil && !s.cfg.CheckDisplayName(s.ClientID, name) {
			return fmt.Errorf("display name %q already in use", name)
		}
		s.SetDisplayName(name)
		return nil

	case protocol.TypeTerminalCaps:
		tc, err := protocol.DecodeTerminalCaps(pkt.Payload)
		if err != nil {
			return err
		}
		s.SetTerminalCaps(tc)
		return nil

	case protocol.TypeStreamStart:
		s.SetSendingVideo(true)
		return nil

	case protocol.TypeStreamStop:
		s.SetSendingVideo(false)
		s.mx.Remove(s.ClientID)
		return nil

	case protocol.TypeImageFrame:
		return s.ReceiveVideoFrame(pkt.Payload)

	case protocol.TypeAudioFrame:
		af, err := protocol.DecodeAudioFrame(pkt.Payload)
		if err != nil {
			return err
		}
		s.incomingAudio.Write(af.Samples)
		s.mx.Publish(s.ClientID, af.Samples)
		return nil

	case protocol.TypePing:
		return s.conn.WritePacket(&protocol.Packet{Type: protocol.TypePong, SenderID: s.ClientID})

	case protocol.TypeClientLeave:
		return fmt.Errorf("client requested leave")

	default:
		return fmt.Errorf("unexpected packet type %s outside handshake", pkt.Type)
	}
}

// Context returns a background context canceled when the slot begins
// shutting down, for use by the render/send loops' blocking waits.
func (s *Slot) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.done
		cancel()
	}()
	return ctx
}
