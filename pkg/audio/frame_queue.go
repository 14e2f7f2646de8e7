package audio

import (
	"context"
	"sync"
)

// FrameQueue is a bounded FIFO of captured audio frames. When full, Push
// drops the oldest frame to admit the new one: freshness over completeness,
// so capture latency stays bounded when the consumer falls behind.
type FrameQueue struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
	closed   bool
	notify   chan struct{}
}

// NewFrameQueue creates a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameQueue{
		frames:   make([][]byte, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push enqueues a frame, evicting the oldest one if the queue is full.
// Returns true if a frame was dropped. Safe to call from the capture
// callback thread.
func (q *FrameQueue) Push(frame []byte) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		dropped = true
	}
	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Pop dequeues the oldest frame, blocking until one is available, the queue
// is closed, or the context is done. The second return is false when no
// more frames will arrive.
func (q *FrameQueue) Pop(ctx context.Context) ([]byte, bool) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			frame := q.frames[0]
			q.frames = q.frames[1:]
			q.mu.Unlock()
			return frame, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close wakes any blocked Pop. Frames already queued are still drained.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
