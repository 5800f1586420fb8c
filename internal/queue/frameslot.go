package queue

import "sync/atomic"

// frameEntry pairs a frame with the generation it was published at.
type frameEntry struct {
	generation uint64
	frame      []byte
}

// FrameSlot is a single-producer/single-consumer double buffer for the
// outgoing video frame. Publish makes a new frame visible with one atomic
// swap; AcquireIfNewer lets the consumer detect "same frame as last time"
// via the generation counter and skip retransmission.
type FrameSlot struct {
	current atomic.Pointer[frameEntry]
	nextGen atomic.Uint64
}

// NewFrameSlot creates an empty frame slot.
func NewFrameSlot() *FrameSlot {
	s := &FrameSlot{}
	s.current.Store(&frameEntry{})
	return s
}

// Publish makes frame the current value and returns its generation number.
func (s *FrameSlot) Publish(frame []byte) uint64 {
	gen := s.nextGen.Add(1)
	s.current.Store(&frameEntry{generation: gen, frame: frame})
	return gen
}

// AcquireIfNewer returns the current frame and its generation if it is
// newer than lastGen, or ok=false if nothing has changed since lastGen.
func (s *FrameSlot) AcquireIfNewer(lastGen uint64) (frame []byte, generation uint64, ok bool) {
	entry := s.current.Load()
	if entry.generation == 0 || entry.generation <= lastGen {
		return nil, lastGen, false
	}
	return entry.frame, entry.generation, true
}

// Generation returns the generation of the most recently published frame,
// or 0 if nothing has been published yet.
func (s *FrameSlot) Generation() uint64 {
	return s.current.Load().generation
}
