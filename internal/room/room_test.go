package room

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/astromitra/astromitra/internal/models"
)

type fakeLifecycle struct {
	mu          sync.Mutex
	bothPresent int
	expired     int
	abandoned   int
	joins       int
	leaves      int
	persisted   []int64

	activateElapsed int64
	activateOK      bool
}

func (f *fakeLifecycle) HandleBothPresent(_ context.Context, _ string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bothPresent++
	return f.activateElapsed, f.activateOK
}

func (f *fakeLifecycle) HandleTimerExpired(_ context.Context, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired++
}

func (f *fakeLifecycle) HandleAbandoned(_ context.Context, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned++
}

func (f *fakeLifecycle) HandleParticipantJoined(_ context.Context, _ string, _ models.ParticipantType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
}

func (f *fakeLifecycle) HandleParticipantLeft(_ context.Context, _ string, _ models.ParticipantType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
}

func (f *fakeLifecycle) PersistElapsed(_ context.Context, _ string, elapsed int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, elapsed)
}

func (f *fakeLifecycle) counts() (bothPresent, expired, abandoned int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bothPresent, f.expired, f.abandoned
}

func testSession(paidMinutes int, typ models.SessionType) *models.Session {
	return &models.Session{
		SessionID:           "sess-1",
		RoomID:              "room-1",
		SessionType:         typ,
		Status:              models.StatusJoined,
		PaidDurationMinutes: paidMinutes,
		LinkValidUntil:      time.Now().Add(time.Hour),
	}
}

// newTestRoom uses a huge tick interval so the background runner stays
// quiet; tests drive the clock through tick() directly.
func newTestRoom(t *testing.T, sess *models.Session, lc Lifecycle) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, sess, lc, Options{
		PresenceGrace: time.Minute,
		TickInterval:  time.Hour,
	}, logrus.New())
}

func roomTicks(r *Room, n int) {
	for i := 0; i < n; i++ {
		r.tick(i + 1)
	}
}

func TestRoom_FullSessionRunsToExpiry(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true}
	r := newTestRoom(t, testSession(10, models.SessionTypeChat), lc)

	r.Join("u1", models.ParticipantUser)
	assert.Equal(t, 1, r.PresenceCount())
	assert.False(t, r.TimerRunning())

	r.Join("a1", models.ParticipantAstrologer)
	assert.Equal(t, 2, r.PresenceCount())
	assert.True(t, r.TimerRunning())
	assert.EqualValues(t, 600, r.Remaining())

	roomTicks(r, 600)

	bothPresent, expired, _ := lc.counts()
	assert.Equal(t, 1, bothPresent)
	assert.Equal(t, 1, expired)
	assert.EqualValues(t, 600, r.Elapsed())
	assert.False(t, r.TimerRunning())

	// ticks past zero change nothing
	roomTicks(r, 50)
	_, expired, _ = lc.counts()
	assert.Equal(t, 1, expired)
	assert.EqualValues(t, 600, r.Elapsed())
}

func TestRoom_DisconnectPausesAndReconnectResumes(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true}
	r := newTestRoom(t, testSession(10, models.SessionTypeChat), lc)

	r.Join("u1", models.ParticipantUser)
	r.Join("a1", models.ParticipantAstrologer)
	roomTicks(r, 30)
	assert.EqualValues(t, 30, r.Elapsed())

	r.Leave(models.ParticipantAstrologer)
	assert.False(t, r.TimerRunning())
	roomTicks(r, 100)
	assert.EqualValues(t, 30, r.Elapsed(), "no time billed while one side is away")

	r.Join("a1", models.ParticipantAstrologer)
	assert.True(t, r.TimerRunning())
	roomTicks(r, 5)
	assert.EqualValues(t, 35, r.Elapsed())

	_, _, abandoned := lc.counts()
	assert.Equal(t, 0, abandoned)
}

func TestRoom_BothLeavingWhileActiveIsAbandonment(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true}
	r := newTestRoom(t, testSession(10, models.SessionTypeChat), lc)

	r.Join("u1", models.ParticipantUser)
	r.Join("a1", models.ParticipantAstrologer)
	roomTicks(r, 10)

	r.Leave(models.ParticipantUser)
	_, _, abandoned := lc.counts()
	assert.Equal(t, 0, abandoned, "one side leaving is a pause, not abandonment")

	r.Leave(models.ParticipantAstrologer)
	_, _, abandoned = lc.counts()
	assert.Equal(t, 1, abandoned)
}

func TestRoom_SingleJoinerNeverActivates(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true}
	r := newTestRoom(t, testSession(10, models.SessionTypeChat), lc)

	r.Join("u1", models.ParticipantUser)
	roomTicks(r, 120)

	bothPresent, _, _ := lc.counts()
	assert.Equal(t, 0, bothPresent)
	assert.EqualValues(t, 0, r.Elapsed())
}

// Timer gating invariant: for any interleaving of join/leave events the
// clock runs exactly when both parties are present.
func TestRoom_TimerGatingUnderRandomEvents(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true}
	r := newTestRoom(t, testSession(60, models.SessionTypeChat), lc)

	rng := rand.New(rand.NewSource(7))
	parts := []models.ParticipantType{models.ParticipantUser, models.ParticipantAstrologer}

	for i := 0; i < 500; i++ {
		pt := parts[rng.Intn(2)]
		if rng.Intn(2) == 0 {
			r.Join(string(pt)+"-id", pt)
		} else {
			r.Leave(pt)
		}
		if r.PresenceCount() == 2 {
			assert.True(t, r.TimerRunning(), "event %d: both present but clock stopped", i)
		} else {
			assert.False(t, r.TimerRunning(), "event %d: clock running with %d present", i, r.PresenceCount())
		}
	}
}

func TestRoom_TeardownBroadcastsAndClears(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true}
	r := newTestRoom(t, testSession(10, models.SessionTypeChat), lc)

	ch := r.Subscribe(models.ParticipantUser)
	r.Join("u1", models.ParticipantUser)
	r.Join("a1", models.ParticipantAstrologer)

	r.Teardown(models.StatusEnded, 42, "ended_by_user")

	var ended *Event
	for ev := range ch {
		if ev.Type == EventSessionEnded {
			cp := ev
			ended = &cp
		}
	}
	if assert.NotNil(t, ended) {
		assert.Equal(t, models.StatusEnded, ended.Status)
		assert.EqualValues(t, 42, ended.ElapsedSeconds)
	}
	assert.Equal(t, 0, r.PresenceCount())

	// repeat teardown is a no-op
	r.Teardown(models.StatusEnded, 42, "ended_by_user")
}

func TestRoom_RestartMidActiveRearmsClock(t *testing.T) {
	lc := &fakeLifecycle{activateOK: true, activateElapsed: 120}
	sess := testSession(10, models.SessionTypeChat)
	sess.Status = models.StatusActive
	sess.ElapsedSeconds = 120
	r := newTestRoom(t, sess, lc)

	r.Join("u1", models.ParticipantUser)
	r.Join("a1", models.ParticipantAstrologer)
	assert.True(t, r.TimerRunning())
	assert.EqualValues(t, 480, r.Remaining())
}
