package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/astromitra/astromitra/internal/models"
)

const (
	EventTimerSync = "timer-sync"

	persistEvery   = 15 // ticks between elapsed_seconds writes
	timerSyncEvery = 5  // ticks between countdown broadcasts
)

// Lifecycle is the room's upward link to the session state machine. The
// room reports what happened; the state machine owns the status write.
type Lifecycle interface {
	// HandleBothPresent fires on the presence 1->2 transition. It returns
	// the elapsed seconds to arm the countdown with and whether the
	// session is (now) active.
	HandleBothPresent(ctx context.Context, sessionID string) (elapsed int64, active bool)

	// HandleTimerExpired fires exactly once when the paid time runs out.
	HandleTimerExpired(ctx context.Context, sessionID string)

	// HandleAbandoned fires when presence drops to zero while active.
	HandleAbandoned(ctx context.Context, sessionID string)

	HandleParticipantJoined(ctx context.Context, sessionID string, pt models.ParticipantType)
	HandleParticipantLeft(ctx context.Context, sessionID string, pt models.ParticipantType)

	PersistElapsed(ctx context.Context, sessionID string, elapsed int64)
}

// Room binds presence, countdown and relay for one live session. All
// cross-component reactions (presence transitions driving the timer,
// expiry driving the end) are wired here; rooms share no state with each
// other.
type Room struct {
	SessionID   string
	RoomID      string
	SessionType models.SessionType

	paidSeconds int64
	presence    *Tracker
	timer       *Countdown
	relay       *Relay
	lifecycle   Lifecycle
	log         *logrus.Entry

	ctx       context.Context
	active    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

type Options struct {
	PresenceGrace time.Duration
	TickInterval  time.Duration
	MaxFileBytes  int64
}

func New(ctx context.Context, sess *models.Session, lc Lifecycle, opt Options, log *logrus.Logger) *Room {
	r := &Room{
		SessionID:   sess.SessionID,
		RoomID:      sess.RoomID,
		SessionType: sess.SessionType,
		paidSeconds: int64(sess.PaidDurationMinutes) * 60,
		presence:    NewTracker(opt.PresenceGrace),
		timer:       NewCountdown(),
		relay:       NewRelay(sess.RoomID, opt.MaxFileBytes),
		lifecycle:   lc,
		ctx:         ctx,
		done:        make(chan struct{}),
		log: log.WithFields(logrus.Fields{
			"session_id": sess.SessionID,
			"room_id":    sess.RoomID,
		}),
	}
	if sess.Status == models.StatusActive {
		// process restart mid-session: re-arm with what was billed
		r.active.Store(true)
		r.timer.Start(r.paidSeconds, sess.ElapsedSeconds)
	}

	r.presence.OnJoin = r.onPresenceJoin
	r.presence.OnLeave = r.onPresenceLeave
	r.timer.OnExpire = r.onExpire

	go r.run(opt.TickInterval)
	return r
}

func (r *Room) onPresenceJoin(e Entry, count int) {
	r.log.WithFields(logrus.Fields{"participant_type": e.Type, "present": count}).Info("participant joined room")
	r.relay.Broadcast(Event{Type: EventParticipantJoin, Participant: e.Type})
	r.lifecycle.HandleParticipantJoined(r.ctx, r.SessionID, e.Type)

	if count == 2 {
		elapsed, active := r.lifecycle.HandleBothPresent(r.ctx, r.SessionID)
		if !active {
			return
		}
		r.active.Store(true)
		r.timer.Start(r.paidSeconds, elapsed)
		r.timer.Resume()
	}
}

func (r *Room) onPresenceLeave(e Entry, count int) {
	r.log.WithFields(logrus.Fields{"participant_type": e.Type, "present": count}).Info("participant left room")
	// time is never charged while only one side is connected
	r.timer.Pause()
	r.relay.Broadcast(Event{Type: EventParticipantLeft, Participant: e.Type})
	r.lifecycle.HandleParticipantLeft(r.ctx, r.SessionID, e.Type)

	if count == 0 && r.active.Load() {
		r.lifecycle.HandleAbandoned(r.ctx, r.SessionID)
	}
}

func (r *Room) onExpire() {
	r.log.WithField("elapsed", r.timer.Elapsed()).Info("countdown expired")
	r.lifecycle.HandleTimerExpired(r.ctx, r.SessionID)
}

func (r *Room) run(tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			n++
			r.tick(n)
		}
	}
}

// tick advances the room clock once and runs periodic housekeeping.
func (r *Room) tick(n int) {
	r.timer.Tick()
	r.presence.Reap()

	if r.timer.Running() {
		if n%timerSyncEvery == 0 {
			r.relay.Broadcast(Event{
				Type:           EventTimerSync,
				ElapsedSeconds: r.timer.Elapsed(),
			})
		}
		if n%persistEvery == 0 {
			r.lifecycle.PersistElapsed(r.ctx, r.SessionID, r.timer.Elapsed())
		}
	}
}

// Join registers presence for one side. Idempotent per role.
func (r *Room) Join(participantID string, pt models.ParticipantType) {
	r.presence.Register(participantID, pt)
}

// Leave is an explicit departure; no grace window applies.
func (r *Room) Leave(pt models.ParticipantType) {
	r.presence.Deregister(pt)
}

func (r *Room) Heartbeat(pt models.ParticipantType) {
	r.presence.Heartbeat(pt)
}

func (r *Room) Subscribe(pt models.ParticipantType) <-chan Event {
	return r.relay.Subscribe(pt)
}

// Unsubscribe drops the given subscription if it is still the live one
// for the role.
func (r *Room) Unsubscribe(pt models.ParticipantType, ch <-chan Event) {
	r.relay.Unsubscribe(pt, ch)
}

func (r *Room) Send(msg *models.RoomMessage) error {
	return r.relay.Send(msg)
}

func (r *Room) PresenceCount() int { return r.presence.Count() }

func (r *Room) TimerRunning() bool { return r.timer.Running() }

func (r *Room) Elapsed() int64 { return r.timer.Elapsed() }

func (r *Room) Remaining() int64 { return r.timer.Remaining() }

// Teardown announces the final state to both parties and releases every
// per-room resource. Safe to call more than once.
func (r *Room) Teardown(status models.SessionStatus, elapsed int64, reason string) {
	r.closeOnce.Do(func() {
		r.timer.Stop()
		r.relay.Broadcast(Event{
			Type:           EventSessionEnded,
			Status:         status,
			ElapsedSeconds: elapsed,
			Reason:         reason,
		})
		r.relay.Close()
		r.presence.Clear()
		close(r.done)
		r.log.WithFields(logrus.Fields{
			"status":  status,
			"elapsed": elapsed,
			"reason":  reason,
		}).Info("room torn down")
	})
}
