// Package server implements the accept/lifecycle manager: the single
// listening socket, the fixed-capacity client slot table, and the
// single-threaded admit/cleanup loop that drives both.
package server

import (
	"crypto/ed25519"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfogg/ascii-chat-server/internal/audit"
	"github.com/zfogg/ascii-chat-server/internal/client"
	"github.com/zfogg/ascii-chat-server/internal/config"
	"github.com/zfogg/ascii-chat-server/internal/health"
	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/mixer"
	"github.com/zfogg/ascii-chat-server/internal/render"
	"github.com/zfogg/ascii-chat-server/internal/shutdown"
)

var log = logging.L("server")

// Whitelist is satisfied by internal/handshake.Whitelist; declared here too
// so callers don't need to import handshake just to build one.
type Whitelist interface {
	Allowed(pub ed25519.PublicKey) bool
}

// Server is the process-wide singleton: one listening socket, an atomic
// shutdown flag, a fixed-capacity slot array, a write-preferring rwlock
// over slot membership, the shared mixer, and a monotonic client-id
// allocator that never reuses 0.
type Server struct {
	cfg       *config.Config
	identity  ed25519.PrivateKey
	whitelist Whitelist
	kernel    render.Kernel
	audit     *audit.Logger

	listener net.Listener
	shutdown *shutdown.Token

	mu    sync.RWMutex
	slots []*client.Slot

	nextClientID atomic.Uint32
	mixer        *mixer.Mixer
	health       *health.Monitor
}

// New creates a Server bound to no socket yet; call Listen then Serve.
// auditLogger may be nil, in which case per-client audit events are
// silently dropped.
func New(cfg *config.Config, identity ed25519.PrivateKey, whitelist Whitelist, kernel render.Kernel, auditLogger *audit.Logger) *Server {
	return &Server{
		cfg:       cfg,
		identity:  identity,
		whitelist: whitelist,
		kernel:    kernel,
		audit:     auditLogger,
		shutdown:  shutdown.New(),
		slots:     make([]*client.Slot, cfg.MaxClients),
		mixer:     mixer.New(),
		health:    health.NewMonitor(),
	}
}

// ShutdownToken returns the token signal handlers should trigger. Signal
// handlers touch only this token and the listening socket; they never
// reach into the slot table or acquire any lock.
func (s *Server) ShutdownToken() *shutdown.Token {
	return s.shutdown
}

// slotConfig derives the per-client buffer configuration from server config.
func (s *Server) slotConfig() client.Config {
	return client.Config{
		MaxPayloadBytes:   s.cfg.MaxPayloadBytes,
		AudioQueueSize:    s.cfg.AudioQueueSize,
		AudioFrameSamples: audioFrameSamples,
		AudioRingFrames:   audioRingFrames,
		FrameRate:         s.cfg.FrameRate,
		HandshakeTimeout:  time.Duration(s.cfg.HandshakeTimeoutS) * time.Second,
		KeepAliveTimeout:  time.Duration(s.cfg.KeepAliveTimeoutS) * time.Second,
		Palette:           s.cfg.Palette,
		EncryptionEnabled: !s.cfg.EncryptionDisabled,
		Audit:             s.audit,
		Health:            s.health,
		CheckDisplayName:  s.displayNameAvailable,
	}
}

// audioFrameSamples/audioRingFrames describe the fixed PCM frame contract
// the mixer and per-slot ring buffers agree on (48kHz mono, ~5.8ms frames).
const (
	audioFrameSamples = 278
	audioRingFrames   = 16
)

// RLockSlots calls fn with a read-only snapshot of the current slot
// pointers. Used by the stats collector; never held across blocking I/O.
func (s *Server) RLockSlots(fn func(slots []*client.Slot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.slots)
}

// ActiveCount returns the number of occupied, active slots.
func (s *Server) ActiveCount() int {
	count := 0
	s.RLockSlots(func(slots []*client.Slot) {
		for _, slot := range slots {
			if slot != nil && slot.Active() {
				count++
			}
		}
	})
	return count
}

// displayNameAvailable reports whether name is free for clientID to claim,
// i.e. not already held by a different active slot. Scans under RLock; the
// receive thread calls this synchronously before committing a DISPLAY_NAME
// packet.
func (s *Server) displayNameAvailable(clientID uint32, name string) bool {
	available := true
	s.RLockSlots(func(slots []*client.Slot) {
		for _, slot := range slots {
			if slot == nil || slot.ClientID == clientID || !slot.Active() {
				continue
			}
			if slot.DisplayName() == name {
				available = false
				return
			}
		}
	})
	return available
}

// Mixer returns the shared N-party audio mixer.
func (s *Server) Mixer() *mixer.Mixer {
	return s.mixer
}

// Health returns the server's component health monitor.
func (s *Server) Health() *health.Monitor {
	return s.health
}
