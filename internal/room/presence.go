package room

import (
	"sync"
	"time"

	"github.com/astromitra/astromitra/internal/models"
)

// Entry is one connected party. At most one entry exists per participant
// type; a reconnect replaces the prior entry instead of double-counting.
type Entry struct {
	ParticipantID string
	Type          models.ParticipantType
	ConnectedAt   time.Time

	lastSeen time.Time
}

// Tracker is the per-room presence authority. Join/Leave callbacks fire
// only on count transitions (0->1, 1->2, 2->1, 1->0), never on heartbeats
// or same-role reconnects. Callbacks run synchronously on the goroutine
// that mutated the tracker and must not call back into it.
type Tracker struct {
	mu      sync.Mutex
	entries map[models.ParticipantType]*Entry

	grace time.Duration
	now   func() time.Time

	OnJoin  func(e Entry, count int)
	OnLeave func(e Entry, count int)
}

func NewTracker(grace time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[models.ParticipantType]*Entry),
		grace:   grace,
		now:     time.Now,
	}
}

// Register adds or refreshes the entry for the given role. Returns the
// resulting count and whether it changed.
func (t *Tracker) Register(participantID string, pt models.ParticipantType) (count int, joined bool) {
	t.mu.Lock()
	now := t.now()
	if prev, ok := t.entries[pt]; ok {
		// reconnect: replace, keep count
		prev.ParticipantID = participantID
		prev.lastSeen = now
		count = len(t.entries)
		t.mu.Unlock()
		return count, false
	}
	e := &Entry{ParticipantID: participantID, Type: pt, ConnectedAt: now, lastSeen: now}
	t.entries[pt] = e
	count = len(t.entries)
	cb := t.OnJoin
	t.mu.Unlock()

	if cb != nil {
		cb(*e, count)
	}
	return count, true
}

// Heartbeat refreshes the grace deadline for the given role.
func (t *Tracker) Heartbeat(pt models.ParticipantType) {
	t.mu.Lock()
	if e, ok := t.entries[pt]; ok {
		e.lastSeen = t.now()
	}
	t.mu.Unlock()
}

// Deregister removes the entry for the given role (explicit leave).
func (t *Tracker) Deregister(pt models.ParticipantType) (count int, left bool) {
	t.mu.Lock()
	e, ok := t.entries[pt]
	if !ok {
		count = len(t.entries)
		t.mu.Unlock()
		return count, false
	}
	delete(t.entries, pt)
	count = len(t.entries)
	cb := t.OnLeave
	t.mu.Unlock()

	if cb != nil {
		cb(*e, count)
	}
	return count, true
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) Get(pt models.ParticipantType) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[pt]; ok {
		return *e, true
	}
	return Entry{}, false
}

// Reap deregisters every entry whose last heartbeat is older than the
// grace window. This is what turns a dead connection into a leave.
func (t *Tracker) Reap() []Entry {
	t.mu.Lock()
	deadline := t.now().Add(-t.grace)
	var stale []Entry
	var counts []int
	for pt, e := range t.entries {
		if e.lastSeen.Before(deadline) {
			stale = append(stale, *e)
			delete(t.entries, pt)
			counts = append(counts, len(t.entries))
		}
	}
	cb := t.OnLeave
	t.mu.Unlock()

	if cb != nil {
		for i, e := range stale {
			cb(e, counts[i])
		}
	}
	return stale
}

// Clear drops all entries without firing leave callbacks. Used on room
// teardown, where the session end itself is the event.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.entries = make(map[models.ParticipantType]*Entry)
	t.mu.Unlock()
}
