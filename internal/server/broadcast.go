package server

import (
	"time"

	"github.com/zfogg/ascii-chat-server/internal/client"
	"github.com/zfogg/ascii-chat-server/internal/render"
)

// broadcastInterval bounds how often the compositor re-gathers sources.
// It only needs to keep pace with the fastest configured frame rate;
// each recipient's own video-render thread still applies its own rate
// limit before actually composing and sending a frame.
const broadcastInterval = 16 * time.Millisecond

// Broadcast runs until the server's shutdown token fires, gathering every active, video-sending
// client's latest decoded frame each tick and publishing the "everyone
// but me" view to each recipient slot. This is the N-party video
// counterpart to the audio mixer: each client's video-render thread reads
// whatever was last published here instead of talking to the other
// slots directly.
func (s *Server) Broadcast() {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown.Done():
			return
		case <-ticker.C:
			s.broadcastOnce()
		}
	}
}

func (s *Server) broadcastOnce() {
	type entry struct {
		slot   *client.Slot
		source render.Source
	}
	var entries []entry
	var recipients []*client.Slot

	s.RLockSlots(func(slots []*client.Slot) {
		for _, slot := range slots {
			if slot == nil || !slot.Active() {
				continue
			}
			recipients = append(recipients, slot)
			if !slot.IsSendingVideo() {
				continue
			}
			frame, ok := slot.CurrentVideoFrame()
			if !ok {
				continue
			}
			entries = append(entries, entry{slot: slot, source: render.Source{ClientID: slot.ClientID, Frame: frame}})
		}
	})

	if len(entries) == 0 {
		return
	}

	for _, recipient := range recipients {
		sources := make([]render.Source, 0, len(entries))
		for _, e := range entries {
			if e.slot.ClientID == recipient.ClientID {
				continue
			}
			sources = append(sources, e.source)
		}
		recipient.SetVideoSources(sources)
	}
}
