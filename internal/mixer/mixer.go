// Package mixer implements the N-party audio mixer: at each recipient's
// audio-render tick, it sums the most recent frame of every other
// producing participant, saturating to the int16 sample range.
package mixer

import "sync"

// Mixer holds the most recently produced audio frame for every currently
// producing participant, keyed by client id.
type Mixer struct {
	mu     sync.Mutex
	frames map[uint32][]int16
}

// New creates an empty mixer.
func New() *Mixer {
	return &Mixer{frames: make(map[uint32][]int16)}
}

// Publish records clientID's most recent audio frame, replacing any prior
// frame from the same client. Passing a nil frame removes the client (it
// has stopped producing).
func (m *Mixer) Publish(clientID uint32, frame []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil {
		delete(m.frames, clientID)
		return
	}
	m.frames[clientID] = frame
}

// Remove drops clientID's frame, e.g. on disconnect.
func (m *Mixer) Remove(clientID uint32) {
	m.Publish(clientID, nil)
}

// Mix sums every published frame except excludeClientID, saturating each
// sample to the int16 range, and returns the result. If no other
// participant is producing, it returns (nil, false) so the caller can skip
// emission.
func (m *Mixer) Mix(excludeClientID uint32, frameLen int) ([]int16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sources [][]int16
	for id, frame := range m.frames {
		if id == excludeClientID {
			continue
		}
		sources = append(sources, frame)
	}

	if len(sources) == 0 {
		return nil, false
	}

	out := make([]int16, frameLen)
	for _, frame := range sources {
		n := frameLen
		if len(frame) < n {
			n = len(frame)
		}
		for i := 0; i < n; i++ {
			out[i] = saturateAdd(out[i], frame[i])
		}
	}
	return out, true
}

// ParticipantCount returns the number of participants currently publishing
// a frame (for stats reporting).
func (m *Mixer) ParticipantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func saturateAdd(a, b int16) int16 {
	sum := int32(a) + int32(b)
	switch {
	case sum > 32767:
		return 32767
	case sum < -32768:
		return -32768
	default:
		return int16(sum)
	}
}
