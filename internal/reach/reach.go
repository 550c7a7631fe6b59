// Package reach tracks which chat rooms the bot has observed activity in.
package reach

import (
	"sort"
	"sync"
)

// Tracker is the set of rooms known to be reachable. The set starts empty
// on every process start.
type Tracker struct {
	mu    sync.Mutex
	rooms map[int64]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[int64]struct{})}
}

// MarkReachable records activity in room. It returns true only for the
// call that moves the room from unseen to reachable.
func (t *Tracker) MarkReachable(room int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rooms[room]; ok {
		return false
	}
	t.rooms[room] = struct{}{}
	return true
}

// Forget drops room so the next MarkReachable for it reports a transition
// again. Used to undo a mark whose follow-up work failed.
func (t *Tracker) Forget(room int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, room)
}

// IsReachable reports whether room has been observed.
func (t *Tracker) IsReachable(room int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[room]
	return ok
}

// Rooms returns the reachable rooms in ascending order.
func (t *Tracker) Rooms() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int64, 0, len(t.rooms))
	for r := range t.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
