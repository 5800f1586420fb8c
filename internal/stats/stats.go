// Package stats runs the single background collector thread: every
// snapshotInterval it reads counters from the server's slot table and
// the shared mixer without ever touching a slot mutex, and logs one
// structured snapshot line. It never mutates server state.
package stats

import (
	"time"

	"github.com/zfogg/ascii-chat-server/internal/client"
	"github.com/zfogg/ascii-chat-server/internal/health"
	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/shutdown"
	"github.com/zfogg/ascii-chat-server/internal/syncutil"
)

var log = logging.L("stats")

const snapshotInterval = 10 * time.Second

// pollInterval is how often the collector wakes to check the shutdown
// token; it does not itself gate how often a snapshot is emitted.
const pollInterval = 10 * time.Millisecond

// Source is the read-only view the collector needs from the server. The
// server satisfies this directly; it exists so the collector doesn't
// import the server package for anything but this narrow surface.
type Source interface {
	RLockSlots(fn func(slots []*client.Slot))
	ActiveCount() int
	Health() *health.Monitor
}

// Snapshot is one point-in-time reading, logged and otherwise discarded;
// nothing in the server retains history beyond the audit log.
type Snapshot struct {
	ActiveClients     int
	AudioQueueDepth   int
	AudioDropTotal    uint64
	VideoFramesTotal  uint64
	AudioFramesPerSec float64
	HeldLocks         int
	OverallHealth     health.Status
	ComponentHealth   map[string]health.Status
}

// Run blocks until tok is triggered, emitting one Snapshot to log every
// snapshotInterval. Intended to be launched in its own goroutine; it is
// the only background thread that reads the slot table purely for
// observability, never for admit/cleanup decisions.
func Run(tok *shutdown.Token, src Source) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var elapsed time.Duration
	var lastEnqueued uint64

	for {
		select {
		case <-tok.Done():
			return
		case <-ticker.C:
			elapsed += pollInterval
			if elapsed < snapshotInterval {
				continue
			}
			elapsed = 0
			snap, enqueued := collect(src, lastEnqueued)
			lastEnqueued = enqueued
			logSnapshot(snap)
		}
	}
}

func collect(src Source, lastEnqueued uint64) (Snapshot, uint64) {
	var audioDepth int
	var audioDrops uint64
	var videoFrames uint64
	var enqueued uint64

	src.RLockSlots(func(slots []*client.Slot) {
		for _, slot := range slots {
			if slot == nil {
				continue
			}
			enq, dropped := slot.AudioQueueStats()
			audioDepth += slot.AudioQueueLen()
			audioDrops += dropped
			videoFrames += slot.VideoFramesPublished()
			enqueued += enq
		}
	})

	snap := Snapshot{
		ActiveClients:     src.ActiveCount(),
		AudioQueueDepth:   audioDepth,
		AudioDropTotal:    audioDrops,
		VideoFramesTotal:  videoFrames,
		AudioFramesPerSec: float64(enqueued-lastEnqueued) / snapshotInterval.Seconds(),
		HeldLocks:         syncutil.HeldLockCount(),
		OverallHealth:     src.Health().Overall(),
		ComponentHealth:   src.Health().Components(),
	}
	return snap, enqueued
}

func logSnapshot(s Snapshot) {
	components := make(map[string]string, len(s.ComponentHealth))
	for name, status := range s.ComponentHealth {
		components[name] = string(status)
	}
	log.Info("snapshot",
		"activeClients", s.ActiveClients,
		"audioQueueDepth", s.AudioQueueDepth,
		"audioDropTotal", s.AudioDropTotal,
		"videoFramesTotal", s.VideoFramesTotal,
		"audioFramesPerSec", s.AudioFramesPerSec,
		"heldLocks", s.HeldLocks,
		"health", string(s.OverallHealth),
		"components", components,
	)
}
