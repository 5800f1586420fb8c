// Package client implements ClientSlot: the per-connection state and
// thread set described by the server's component design. Each slot owns a
// connection, runs its handshake inline on the receive thread, then spawns
// the send, video-render, and audio-render threads for the life of the
// session.
package client

import (
	"crypto/ed25519"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zfogg/ascii-chat-server/internal/audit"
	"github.com/zfogg/ascii-chat-server/internal/handshake"
	"github.com/zfogg/ascii-chat-server/internal/health"
	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/mixer"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
	"github.com/zfogg/ascii-chat-server/internal/queue"
	"github.com/zfogg/ascii-chat-server/internal/render"
	"github.com/zfogg/ascii-chat-server/internal/transport"
)

var log = logging.L("client")

// Config bounds the tunables a slot needs from server configuration.
type Config struct {
	MaxPayloadBytes   int
	AudioQueueSize    int
	AudioFrameSamples int
	AudioRingFrames   int
	FrameRate         int
	HandshakeTimeout  time.Duration
	KeepAliveTimeout  time.Duration
	Palette           string
	EncryptionEnabled bool
	Audit             *audit.Logger
	Health            *health.Monitor

	// CheckDisplayName reports whether name is free for clientID to claim,
	// i.e. not already held by a different active slot. Nil means "don't
	// enforce uniqueness" (used by tests that construct a slot outside a
	// Server).
	CheckDisplayName func(clientID uint32, name string) bool
}

// Slot owns one admitted client's connection, state, and buffers. Only the
// receive thread ever transitions active true->false; only the lifecycle
// manager frees a slot after all four threads have been joined.
type Slot struct {
	ClientID     uint32
	SessionID    string
	PeerEndpoint string
	ConnectedAt  time.Time

	conn *transport.Conn
	cfg  Config

	// atomic state flags
	active                      atomic.Bool
	shuttingDown                atomic.Bool
	protocolDisconnectRequested atomic.Bool
	isSendingVideo              atomic.Bool
	isSendingAudio              atomic.Bool
	sendThreadRunning           atomic.Bool
	videoRenderThreadRunning    atomic.Bool
	audioRenderThreadRunning    atomic.Bool

	// wide atomics read by multiple threads without any lock
	width  atomic.Uint32
	height atomic.Uint32
	caps   atomic.Uint32 // protocol.CapabilityBits

	// per-slot mutex guards the non-atomic scalar fields below
	mu               sync.Mutex
	displayName      string
	terminalCaps     protocol.TerminalCaps
	palette          string
	videoSources     []render.Source
	disconnectReason string

	// buffers
	incomingVideo *queue.FrameSlot
	incomingAudio *queue.PCMRing
	outgoingASCII *queue.FrameSlot
	audioOut      *queue.AudioQueue

	handshakeCtx *handshake.Context
	mx           *mixer.Mixer
	kernel       render.Kernel

	lastVideoTick atomic.Int64 // unix nano of the last published composite; the render ticker sets the rate

	done chan struct{}
}

// New creates a fully initialized slot wrapping conn. Call Run to drive
// its handshake and threads.
func New(clientID uint32, conn net.Conn, mx *mixer.Mixer, kernel render.Kernel, cfg Config) *Slot {
	s := &Slot{
		ClientID:     clientID,
		SessionID:    uuid.NewString(),
		PeerEndpoint: conn.RemoteAddr().String(),
		ConnectedAt:  time.Now(),
		conn:         transport.New(conn, cfg.MaxPayloadBytes),
		cfg:          cfg,
		palette:      cfg.Palette,
		mx:           mx,
		kernel:       kernel,
		done:         make(chan struct{}),
	}
	s.incomingVideo = queue.NewFrameSlot()
	s.incomingAudio = queue.NewPCMRing(cfg.AudioFrameSamples, cfg.AudioRingFrames)
	s.outgoingASCII = queue.NewFrameSlot()
	s.audioOut = queue.NewAudioQueue(cfg.AudioQueueSize)
	s.active.Store(true)
	return s
}

func (s *Slot) logger() *slog.Logger {
	return logging.WithClient(log, s.ClientID, s.SessionID)
}

// auditLog records an audit entry for this client, keyed by its session
// id. A no-op when no audit logger is configured.
func (s *Slot) auditLog(event string, details map[string]any) {
	s.cfg.Audit.Log(event, s.SessionID, details)
}

// Active reports whether the slot is still considered occupied. Only the
// receive thread clears this.
func (s *Slot) Active() bool { return s.active.Load() }

// RequestShutdown asks every thread on this slot to exit at its next
// cooperative check point, and expires any pending read so a receive
// thread blocked in ReadPacket returns instead of waiting out its
// keep-alive deadline.
func (s *Slot) RequestShutdown() {
	if s.shuttingDown.CompareAndSwap(false, true) {
		close(s.done)
		_ = s.conn.SetReadDeadline(time.Now())
	}
}

// ShuttingDown reports whether RequestShutdown has been called.
func (s *Slot) ShuttingDown() bool { return s.shuttingDown.Load() }

// DisplayName returns the client's display name under the slot mutex.
func (s *Slot) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// SetDisplayName stores name (already truncated to the wire limit by the
// caller) under the slot mutex.
func (s *Slot) SetDisplayName(name string) {
	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
}

// TerminalCaps returns the client's terminal capability record.
func (s *Slot) TerminalCaps() protocol.TerminalCaps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalCaps
}

// SetTerminalCaps stores the client's terminal capability record and the
// stream dimensions it implies.
func (s *Slot) SetTerminalCaps(tc protocol.TerminalCaps) {
	s.mu.Lock()
	s.terminalCaps = tc
	s.mu.Unlock()
	s.width.Store(uint32(tc.Width))
	s.height.Store(uint32(tc.Height))
}

// Dimensions returns the current stream width/height without any lock.
func (s *Slot) Dimensions() (width, height uint16) {
	return uint16(s.width.Load()), uint16(s.height.Load())
}

// Palette returns the client's selected ASCII palette.
func (s *Slot) Palette() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.palette
}

// SetCapabilities stores the client's negotiated capability bitset.
func (s *Slot) SetCapabilities(bits protocol.CapabilityBits) {
	s.caps.Store(uint32(bits))
}

// Capabilities returns the client's negotiated capability bitset.
func (s *Slot) Capabilities() protocol.CapabilityBits {
	return protocol.CapabilityBits(s.caps.Load())
}

// recoverThread confines a panic in one of the slot's threads to that
// slot: it logs the panic and requests the slot shut down instead of
// letting the panic propagate out of conc.WaitGroup.Wait and crash the
// process.
func (s *Slot) recoverThread(name string) {
	if r := recover(); r != nil {
		s.logger().Error("thread panicked, disconnecting client", "thread", name, "panic", r)
		s.protocolDisconnectRequested.Store(true)
		s.RequestShutdown()
	}
}

// IsSendingVideo reports whether the client has an active outgoing video
// stream, per its last STREAM_START/STREAM_STOP/CAPABILITIES packet.
func (s *Slot) IsSendingVideo() bool {
	return s.isSendingVideo.Load()
}

// SetSendingVideo records whether the client currently has an outgoing
// video stream, per STREAM_START/STREAM_STOP/CAPABILITIES.
func (s *Slot) SetSendingVideo(sending bool) {
	s.isSendingVideo.Store(sending)
}

// IsSendingAudio reports whether the client has an active outgoing audio
// stream, per its last CAPABILITIES packet.
func (s *Slot) IsSendingAudio() bool {
	return s.isSendingAudio.Load()
}

// SetSendingAudio records whether the client currently has an outgoing
// audio stream, per CAPABILITIES.
func (s *Slot) SetSendingAudio(sending bool) {
	s.isSendingAudio.Store(sending)
}

// ReceiveVideoFrame decodes one ImageFrame packet payload, takes an
// independent copy of its pixel data, and publishes it as this client's
// current incoming video frame.
func (s *Slot) ReceiveVideoFrame(payload []byte) error {
	frame, err := protocol.DecodeImageFrame(payload)
	if err != nil {
		return err
	}
	cp := make([]byte, len(frame.Data))
	copy(cp, frame.Data)
	frame.Data = cp
	s.incomingVideo.Publish(protocol.EncodeImageFrame(frame))
	return nil
}

// CurrentVideoFrame returns this client's most recently received decoded
// video frame, for the server's broadcast loop to gather into other
// recipients' composite sources.
func (s *Slot) CurrentVideoFrame() (protocol.ImageFrame, bool) {
	data, gen, ok := s.incomingVideo.AcquireIfNewer(0)
	if !ok || gen == 0 {
		return protocol.ImageFrame{}, false
	}
	frame, err := protocol.DecodeImageFrame(data)
	if err != nil {
		return protocol.ImageFrame{}, false
	}
	return frame, true
}

// AudioQueueStats returns the outbound audio queue's lifetime enqueue and
// drop-oldest counts, for the stats collector.
func (s *Slot) AudioQueueStats() (enqueued, dropped uint64) {
	return s.audioOut.Stats()
}

// AudioQueueLen returns the outbound audio queue's current depth.
func (s *Slot) AudioQueueLen() int {
	return s.audioOut.Len()
}

// VideoFramesPublished returns the number of ASCII frames this slot has
// rendered and published so far.
func (s *Slot) VideoFramesPublished() uint64 {
	return s.outgoingASCII.Generation()
}

// setDisconnectReason records the audit event kind that ended this
// session, for the server's shutdown summary. A clean disconnect (peer
// close, requested leave, keep-alive timeout) leaves this empty.
func (s *Slot) setDisconnectReason(kind string) {
	s.mu.Lock()
	s.disconnectReason = kind
	s.mu.Unlock()
}

// DisconnectReason returns the audit event kind that ended this session,
// or "" for a clean disconnect.
func (s *Slot) DisconnectReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectReason
}

// PeerIdentity returns the client's authenticated identity key, valid only
// once the handshake has completed.
func (s *Slot) PeerIdentity() ed25519.PublicKey {
	if s.handshakeCtx == nil {
		return nil
	}
	return s.handshakeCtx.PeerIdentityPub
}
