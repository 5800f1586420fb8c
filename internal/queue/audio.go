// Package queue implements the per-client bounded buffers described by the
// protocol's threading fabric: a single-producer/single-consumer audio
// packet queue with drop-oldest overflow policy, and a double-buffered
// outgoing video frame slot with generation-counted change detection.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zfogg/ascii-chat-server/internal/logging"
)

var log = logging.L("queue")

// AudioQueue is a fixed-capacity, single-producer/single-consumer queue of
// audio packets. Enqueue never blocks: on overflow it drops the oldest
// queued packet to make room for the new one and bumps the drop counter.
// Dequeue blocks until a packet is available or ctx/stop signals shutdown.
type AudioQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	buf      []any
	head     int
	size     int
	capacity int

	enqueued atomic.Uint64
	dropped  atomic.Uint64

	closed atomic.Bool
}

// NewAudioQueue creates a queue with the given fixed capacity.
func NewAudioQueue(capacity int) *AudioQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &AudioQueue{
		buf:      make([]any, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue always succeeds. If the queue is full, the oldest packet is
// dropped to make room and the drop counter is incremented.
func (q *AudioQueue) Enqueue(packet any) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed.Load() {
		return
	}

	if q.size == q.capacity {
		// Drop the oldest packet (at head) to make room for the new tail.
		q.head = (q.head + 1) % q.capacity
		q.size--
		q.dropped.Add(1)
	}

	tail := (q.head + q.size) % q.capacity
	q.buf[tail] = packet
	q.size++
	q.enqueued.Add(1)

	q.notEmpty.Signal()
}

// Dequeue blocks until a packet is available, the context is canceled, or
// Close is called. Returns ok=false if the queue was closed with nothing
// left to drain.
func (q *AudioQueue) Dequeue(ctx context.Context) (packet any, ok bool) {
	done := make(chan struct{})
	stopWaiter := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		close(done)
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stopWaiter()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed.Load() {
		select {
		case <-done:
			return nil, false
		default:
		}
		q.notEmpty.Wait()
	}

	if q.size == 0 {
		return nil, false
	}

	packet = q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.size--
	return packet, true
}

// Close wakes any blocked Dequeue and prevents further enqueues.
func (q *AudioQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.CompareAndSwap(false, true) {
		q.notEmpty.Broadcast()
	}
}

// Len returns the current queue depth.
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Stats returns the lifetime enqueue and drop counts.
func (q *AudioQueue) Stats() (enqueued, dropped uint64) {
	return q.enqueued.Load(), q.dropped.Load()
}
