package server

import (
	"errors"
	"net"
	"time"

	"github.com/zfogg/ascii-chat-server/internal/audit"
	"github.com/zfogg/ascii-chat-server/internal/client"
	"github.com/zfogg/ascii-chat-server/internal/health"
	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/shutdown"
)

// cleanupInterval bounds how often the main loop scans for finished slots
// between accepted connections, so a quiet listener still reclaims dead
// slots promptly.
const cleanupInterval = 200 * time.Millisecond

// joinTimeout bounds how long shutdown waits for a slot's threads to exit
// before abandoning it.
const joinTimeout = 200 * time.Millisecond

// Serve runs the accept/lifecycle loop until the listener closes or
// shutdown is requested. It is single-threaded by design: the only
// concurrent writers to the slot table are this goroutine (admit/remove);
// every other goroutine only reads slot pointers under RLock.
func (s *Server) Serve() {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult)

	go func() {
		for {
			conn, err := s.listener.Accept()
			accepted <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		s.cleanup()

		if s.shutdown.Requested() {
			return
		}

		select {
		case res := <-accepted:
			if res.err != nil {
				if errors.Is(res.err, net.ErrClosed) {
					return
				}
				log.Warn("accept error, continuing", logging.KeyError, res.err.Error())
				s.health.Update("listener", health.Degraded, res.err.Error())
				continue
			}
			s.admit(res.conn)

		case <-ticker.C:

		case <-s.shutdown.Done():
			return
		}
	}
}

// admit assigns a new client id, finds a free slot, and spawns the
// receive thread (which drives the handshake inline, then the other
// three threads on success). A failure to find a free slot closes the
// connection and continues; LimitListener makes this the rare defensive
// path rather than the common one.
func (s *Server) admit(conn net.Conn) {
	s.mu.Lock()
	idx := -1
	for i, slot := range s.slots {
		if slot == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		log.Warn("no free slot for new connection, rejecting", "peer", conn.RemoteAddr().String())
		conn.Close()
		return
	}

	id := s.nextClientID.Add(1)
	if id == 0 { // wrapped past 0, which is reserved for "empty slot"
		id = s.nextClientID.Add(1)
	}

	slot := client.New(id, conn, s.mixer, s.kernel, s.slotConfig())
	s.slots[idx] = slot
	s.mu.Unlock()

	log.Info("client admitted", "clientId", id, "peer", slot.PeerEndpoint, "slot", idx)

	go slot.Run(client.Identity{Key: s.identity, Whitelist: s.whitelist})
}

// cleanup scans for slots whose receive thread has exited (active=false)
// and frees them. Runs under RLock for the scan and upgrades to a write
// lock only to clear the entries it found.
func (s *Server) cleanup() {
	var toRemove []int

	s.mu.RLock()
	for i, slot := range s.slots {
		if slot != nil && !slot.Active() {
			toRemove = append(toRemove, i)
		}
	}
	s.mu.RUnlock()

	if len(toRemove) == 0 {
		return
	}

	s.mu.Lock()
	for _, i := range toRemove {
		if slot := s.slots[i]; slot != nil && !slot.Active() {
			s.mixer.Remove(slot.ClientID)
			s.slots[i] = nil
		}
	}
	s.mu.Unlock()
}

// Shutdown requests every slot stop, which expires its pending read so its
// receive thread returns and the slot closes its connection, then performs
// a final bounded cleanup sweep. Called by the main thread once it observes the shutdown
// token set; never called from the signal handler itself.
func (s *Server) Shutdown() {
	s.mu.RLock()
	slots := make([]*client.Slot, len(s.slots))
	copy(slots, s.slots)
	s.mu.RUnlock()

	for _, slot := range slots {
		if slot != nil {
			slot.RequestShutdown()
		}
	}

	deadline := time.Now().Add(joinTimeout)
	for time.Now().Before(deadline) {
		if s.ActiveCount() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	summary := shutdown.NewSummary()
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		enqueued, dropped := slot.AudioQueueStats()
		summary.RecordClient(enqueued, dropped, slot.VideoFramesPublished())
		if reason := slot.DisconnectReason(); reason != "" {
			summary.RecordError(reason)
		}
	}
	s.logShutdownSummary(summary)

	s.cleanup()
}

// logShutdownSummary emits one structured log line and (if configured) one
// audit entry summarizing every client this server ever admitted, instead
// of leaving that information scattered across per-client log lines.
func (s *Server) logShutdownSummary(summary *shutdown.Summary) {
	log.Info("shutdown summary",
		"clientsDisconnected", summary.ClientsDisconnected,
		"audioFramesEnqueued", summary.AudioFramesEnqueued,
		"audioFramesDropped", summary.AudioFramesDropped,
		"videoFramesSent", summary.VideoFramesSent,
		"errorsByKind", summary.ErrorsByKind,
	)
	s.audit.Log(audit.EventShutdownSummary, "", map[string]any{
		"clientsDisconnected": summary.ClientsDisconnected,
		"audioFramesEnqueued": summary.AudioFramesEnqueued,
		"audioFramesDropped":  summary.AudioFramesDropped,
		"videoFramesSent":     summary.VideoFramesSent,
		"errorsByKind":        summary.ErrorsByKind,
	})
}
