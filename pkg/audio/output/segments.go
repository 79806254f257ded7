// ABOUTME: Segment queue feeding callback-driven output devices
// ABOUTME: Tracks per-buffer progress so completions fire when a buffer is consumed
package output

import "sync"

// segment is one scheduled buffer awaiting consumption by the device callback
type segment struct {
	samples []int16
	pos     int
	done    func()
}

// segmentQueue is filled by Schedule and drained by the device's data callback
type segmentQueue struct {
	mu       sync.Mutex
	segments []*segment
	closed   bool
}

func (q *segmentQueue) push(samples []int16, done func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.segments = append(q.segments, &segment{samples: samples, done: done})
	return nil
}

// fill copies queued samples into out, zero-filling on underrun. It returns
// the done callbacks of every segment that was fully consumed; the caller
// must run them outside the device callback.
func (q *segmentQueue) fill(out []int16) []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var finished []func()
	n := 0
	for n < len(out) && len(q.segments) > 0 {
		seg := q.segments[0]
		copied := copy(out[n:], seg.samples[seg.pos:])
		seg.pos += copied
		n += copied

		if seg.pos >= len(seg.samples) {
			q.segments = q.segments[1:]
			if seg.done != nil {
				finished = append(finished, seg.done)
			}
		}
	}

	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	return finished
}

// pending returns the number of samples not yet handed to the device
func (q *segmentQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, seg := range q.segments {
		total += len(seg.samples) - seg.pos
	}
	return total
}

// close drops every queued segment without running its callback
func (q *segmentQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.segments = nil
}

// dispatch runs completion callbacks off the device thread
func dispatch(callbacks []func()) {
	for _, fn := range callbacks {
		go fn()
	}
}
