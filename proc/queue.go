package proc

import "sync"

// trackQueue is a bounded FIFO of pending tracks. All methods are safe for
// concurrent use; the capacity is fixed at construction.
type trackQueue struct {
	mu     sync.Mutex
	tracks []Track
	cap    int
}

func newTrackQueue(capacity int) *trackQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &trackQueue{cap: capacity}
}

// Push appends a track, failing with ErrQueueFull at capacity.
func (q *trackQueue) Push(t Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) >= q.cap {
		return ErrQueueFull
	}
	q.tracks = append(q.tracks, t)
	return nil
}

// PushAll appends tracks until the queue is full and reports how many fit.
func (q *trackQueue) PushAll(ts []Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	added := 0
	for _, t := range ts {
		if len(q.tracks) >= q.cap {
			break
		}
		q.tracks = append(q.tracks, t)
		added++
	}
	return added
}

// PopFront removes and returns the head of the queue.
func (q *trackQueue) PopFront() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return Track{}, false
	}
	t := q.tracks[0]
	q.tracks = q.tracks[1:]
	return t, true
}

// RemoveAt removes the track at index i (0-based), shifting later entries
// forward without reordering.
func (q *trackQueue) RemoveAt(i int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.tracks) {
		return Track{}, ErrBadPosition
	}
	t := q.tracks[i]
	q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
	return t, nil
}

// Snapshot returns a copy of the pending tracks in play order.
func (q *trackQueue) Snapshot() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

func (q *trackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// Clear drops all pending tracks and returns how many were dropped.
func (q *trackQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.tracks)
	q.tracks = nil
	return n
}

func (q *trackQueue) Cap() int {
	return q.cap
}
