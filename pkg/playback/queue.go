// ABOUTME: FIFO queue of decoded buffers awaiting playback
// ABOUTME: Pure bookkeeping with no device resources or locking of its own
package playback

import (
	"time"

	"github.com/Resonate-Protocol/pcm-player/pkg/audio"
)

// Queue holds buffers in arrival order. It is not safe for concurrent use;
// the Engine guards it with its own mutex.
type Queue struct {
	items    []audio.Buffer
	maxDepth int
}

// NewQueue creates a queue. maxDepth <= 0 means unbounded.
func NewQueue(maxDepth int) *Queue {
	return &Queue{maxDepth: maxDepth}
}

// Enqueue appends buf to the tail. When a depth cap is set and reached, the
// oldest buffer is evicted and returned with dropped=true.
func (q *Queue) Enqueue(buf audio.Buffer) (evicted audio.Buffer, dropped bool) {
	if q.maxDepth > 0 && len(q.items) >= q.maxDepth {
		evicted, _ = q.TryPull()
		dropped = true
	}
	q.items = append(q.items, buf)
	return evicted, dropped
}

// TryPull removes and returns the head, if any
func (q *Queue) TryPull() (audio.Buffer, bool) {
	if len(q.items) == 0 {
		return audio.Buffer{}, false
	}
	buf := q.items[0]
	q.items[0] = audio.Buffer{}
	q.items = q.items[1:]
	return buf, true
}

// Len returns the number of queued buffers
func (q *Queue) Len() int { return len(q.items) }

// Duration returns the total playing time of the queued buffers
func (q *Queue) Duration() time.Duration {
	var total time.Duration
	for _, buf := range q.items {
		total += buf.Duration()
	}
	return total
}

// Clear discards every queued buffer
func (q *Queue) Clear() {
	q.items = nil
}
