// Package shutdown provides the single process-wide shutdown token every
// loop observes. Signal handlers only ever touch this token (and the
// listening socket); all other teardown is driven by the main thread
// noticing the token is set.
package shutdown

import "sync/atomic"

// Token is a lock-free, many-reader shutdown flag with optional observer
// callbacks invoked once when the flag transitions to set.
type Token struct {
	flag      atomic.Bool
	done      chan struct{}
	observers []func()
}

// New creates a Token in the not-shutting-down state.
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Requested reports whether shutdown has been signaled.
func (t *Token) Requested() bool {
	return t.flag.Load()
}

// Done returns a channel closed the moment Trigger first runs, for use in
// a select alongside a blocking accept/read.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnShutdown registers a callback to run the first time Trigger is called.
// Not safe to call concurrently with Trigger; register all observers
// during startup before the server begins accepting connections.
func (t *Token) OnShutdown(fn func()) {
	t.observers = append(t.observers, fn)
}

// Trigger sets the shutdown flag and runs every registered observer. Safe
// to call more than once; only the first call runs the observers.
func (t *Token) Trigger() {
	if !t.flag.CompareAndSwap(false, true) {
		return
	}
	close(t.done)
	for _, fn := range t.observers {
		fn()
	}
}

// Summary aggregates what happened across every client slot during
// shutdown, for a single structured log line instead of one line per
// client. Zero value is ready to use.
type Summary struct {
	ClientsDisconnected int
	ErrorsByKind        map[string]int
	AudioFramesEnqueued uint64
	AudioFramesDropped  uint64
	VideoFramesSent     uint64
}

// NewSummary returns an empty, ready-to-record Summary.
func NewSummary() *Summary {
	return &Summary{ErrorsByKind: make(map[string]int)}
}

// RecordError increments the count for one error kind (e.g.
// "protocol_error", "handshake_failed").
func (s *Summary) RecordError(kind string) {
	if s.ErrorsByKind == nil {
		s.ErrorsByKind = make(map[string]int)
	}
	s.ErrorsByKind[kind]++
}

// RecordClient folds one departing client's stream counters into the
// running totals.
func (s *Summary) RecordClient(audioEnqueued, audioDropped, videoFrames uint64) {
	s.ClientsDisconnected++
	s.AudioFramesEnqueued += audioEnqueued
	s.AudioFramesDropped += audioDropped
	s.VideoFramesSent += videoFrames
}
