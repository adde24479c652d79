package proc

import (
	"errors"
	"testing"
)

func makeTracks(n int) []Track {
	tracks := make([]Track, n)
	for i := range tracks {
		tracks[i] = Track{
			PageURL: "https://www.youtube.com/watch?v=" + string(rune('a'+i)),
			Title:   "Track " + string(rune('A'+i)),
		}
	}
	return tracks
}

func TestQueueFIFO(t *testing.T) {
	q := newTrackQueue(10)
	tracks := makeTracks(3)
	for _, tr := range tracks {
		if err := q.Push(tr); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	for i := range tracks {
		got, ok := q.PopFront()
		if !ok {
			t.Fatalf("PopFront %d: queue empty", i)
		}
		if got.Title != tracks[i].Title {
			t.Errorf("PopFront %d: got %q, want %q", i, got.Title, tracks[i].Title)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Error("PopFront on empty queue should report not ok")
	}
}

func TestQueueCapacity(t *testing.T) {
	q := newTrackQueue(2)
	tracks := makeTracks(2)
	for _, tr := range tracks {
		if err := q.Push(tr); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}
	if err := q.Push(Track{Title: "overflow"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Push over capacity: got %v, want ErrQueueFull", err)
	}
	if q.Len() != 2 {
		t.Errorf("Len after overflow push: got %d, want 2", q.Len())
	}
}

func TestQueuePushAllPartial(t *testing.T) {
	q := newTrackQueue(3)
	added := q.PushAll(makeTracks(5))
	if added != 3 {
		t.Errorf("PushAll: got %d added, want 3", added)
	}
	if q.Len() != 3 {
		t.Errorf("Len: got %d, want 3", q.Len())
	}

	// Earlier entries must have won the capacity race.
	got, _ := q.PopFront()
	if got.Title != "Track A" {
		t.Errorf("head after partial PushAll: got %q, want %q", got.Title, "Track A")
	}
}

func TestQueueRemoveAt(t *testing.T) {
	q := newTrackQueue(10)
	q.PushAll(makeTracks(3))

	removed, err := q.RemoveAt(1)
	if err != nil {
		t.Fatalf("RemoveAt(1) failed: %v", err)
	}
	if removed.Title != "Track B" {
		t.Errorf("RemoveAt(1): got %q, want %q", removed.Title, "Track B")
	}

	snap := q.Snapshot()
	if len(snap) != 2 || snap[0].Title != "Track A" || snap[1].Title != "Track C" {
		t.Errorf("queue after remove: %+v", snap)
	}

	for _, pos := range []int{-1, 2, 100} {
		if _, err := q.RemoveAt(pos); !errors.Is(err, ErrBadPosition) {
			t.Errorf("RemoveAt(%d): got %v, want ErrBadPosition", pos, err)
		}
	}
}

func TestQueueClear(t *testing.T) {
	q := newTrackQueue(10)
	q.PushAll(makeTracks(4))
	if n := q.Clear(); n != 4 {
		t.Errorf("Clear: got %d, want 4", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len after Clear: got %d, want 0", q.Len())
	}
	if n := q.Clear(); n != 0 {
		t.Errorf("Clear on empty queue: got %d, want 0", n)
	}
}

func TestQueueSnapshotIsolation(t *testing.T) {
	q := newTrackQueue(10)
	q.PushAll(makeTracks(2))
	snap := q.Snapshot()
	snap[0].Title = "mutated"

	fresh := q.Snapshot()
	if fresh[0].Title != "Track A" {
		t.Errorf("snapshot mutation leaked into queue: %q", fresh[0].Title)
	}
}
