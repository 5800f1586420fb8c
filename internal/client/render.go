package client

import (
	"time"

	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/protocol"
	"github.com/zfogg/ascii-chat-server/internal/render"
)

// videoRenderInterval is the rate cap for the video-render thread (≤60Hz).
func (s *Slot) videoRenderInterval() time.Duration {
	fps := s.cfg.FrameRate
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}

// audioRenderInterval matches the audio frame cadence (~5.8ms, ≈172Hz).
const audioRenderInterval = 5800 * time.Microsecond

// videoRenderLoop composes the current multi-source ASCII frame for this
// recipient at a rate-limited tick and publishes it to the outgoing double
// buffer. The rendering kernel itself is an external collaborator; this
// loop only gathers sources and calls it.
func (s *Slot) videoRenderLoop() {
	defer s.recoverThread("video-render")
	s.videoRenderThreadRunning.Store(true)
	defer s.videoRenderThreadRunning.Store(false)

	ticker := time.NewTicker(s.videoRenderInterval())
	defer ticker.Stop()

	// lastSourceCount tracks how many sources went into this recipient's
	// last composited grid, so a change in participant count (which
	// reshapes the grid layout) can be signaled before the next frame
	// lands on top of stale content. -1 means "no frame composed yet",
	// so the first real composite never emits a spurious clear.
	lastSourceCount := -1

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		if !s.IsSendingVideo() {
			continue
		}

		sources := s.VideoSources()
		if len(sources) != lastSourceCount {
			if lastSourceCount != -1 {
				if err := s.conn.WritePacket(&protocol.Packet{Type: protocol.TypeClearConsole, SenderID: s.ClientID}); err != nil {
					s.logger().Warn("clear console write failed", logging.KeyError, err.Error())
				}
			}
			lastSourceCount = len(sources)
		}

		width, height := s.Dimensions()
		if width == 0 || height == 0 {
			continue
		}

		frame := s.kernel.Compose(sources, width, height, s.Palette())
		s.outgoingASCII.Publish(protocol.EncodeASCIIFrame(frame))
		s.lastVideoTick.Store(time.Now().UnixNano())
	}
}

// VideoSources returns the set of composable sources most recently handed
// to this slot by the server's broadcast loop via SetVideoSources.
func (s *Slot) VideoSources() []render.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoSources
}

// SetVideoSources is called by the server's broadcast loop to hand this
// slot the current set of composable sources (every other active
// producer) ahead of its next video-render tick.
func (s *Slot) SetVideoSources(sources []render.Source) {
	s.mu.Lock()
	s.videoSources = sources
	s.mu.Unlock()
}

// audioRenderLoop invokes the mixer at a fixed tick and enqueues the
// result as an outgoing audio packet, excluding this recipient from the
// mix.
func (s *Slot) audioRenderLoop() {
	defer s.recoverThread("audio-render")
	s.audioRenderThreadRunning.Store(true)
	defer s.audioRenderThreadRunning.Store(false)

	ticker := time.NewTicker(audioRenderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		mixed, ok := s.mx.Mix(s.ClientID, s.cfg.AudioFrameSamples)
		if !ok {
			continue
		}
		s.audioOut.Enqueue(mixed)
	}
}
