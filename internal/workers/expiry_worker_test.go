package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/room"
	"github.com/astromitra/astromitra/internal/utils"
)

type sweepRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func (r *sweepRepo) GetBySessionID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (r *sweepRepo) GetByRoomID(_ context.Context, _ string) (*models.Session, error) {
	return nil, utils.ErrNotFound
}

func (r *sweepRepo) GetToken(_ context.Context, _ string) (*models.JoinToken, error) {
	return nil, utils.ErrNotFound
}

func (r *sweepRepo) TransitionStatus(_ context.Context, _ string, _ []models.SessionStatus, _ models.SessionStatus, _ map[string]any) (bool, error) {
	return false, nil
}

func (r *sweepRepo) SetElapsedSeconds(_ context.Context, _ string, _ int64) error { return nil }

func (r *sweepRepo) ExpireOverdue(_ context.Context, cutoff time.Time, multiplier int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, s := range r.sessions {
		if (s.Status == models.StatusScheduled || s.Status == models.StatusJoined) && s.JoinDeadline(multiplier).Before(cutoff) {
			s.Status = models.StatusExpired
			ids = append(ids, s.SessionID)
		}
	}
	return ids, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	ended []string
}

func (n *recordingNotifier) SessionJoined(_ context.Context, _ string, _ models.ParticipantType) {}

func (n *recordingNotifier) SessionEnded(_ context.Context, id string, _ models.SessionStatus, _ int64, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, id)
}

func TestExpiryWorker_SweepsOverdueSessions(t *testing.T) {
	repo := &sweepRepo{sessions: map[string]*models.Session{
		"overdue": {
			SessionID:      "overdue",
			RoomID:         "room-overdue",
			Status:         models.StatusJoined,
			LinkValidUntil: time.Now().Add(-time.Minute),
		},
		"fresh": {
			SessionID:      "fresh",
			RoomID:         "room-fresh",
			Status:         models.StatusScheduled,
			LinkValidUntil: time.Now().Add(time.Hour),
		},
		"live": {
			SessionID:      "live",
			RoomID:         "room-live",
			Status:         models.StatusActive,
			LinkValidUntil: time.Now().Add(-time.Minute),
		},
		// no explicit window; the derived one (start + 3x10min) is still open
		"no-window": {
			SessionID:           "no-window",
			RoomID:              "room-no-window",
			Status:              models.StatusScheduled,
			ScheduledStartTime:  time.Now().Add(-10 * time.Minute),
			PaidDurationMinutes: 10,
		},
		// no explicit window and the derived one lapsed
		"no-window-lapsed": {
			SessionID:           "no-window-lapsed",
			RoomID:              "room-no-window-lapsed",
			Status:              models.StatusScheduled,
			ScheduledStartTime:  time.Now().Add(-2 * time.Hour),
			PaidDurationMinutes: 10,
		},
	}}
	n := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := room.NewHub(ctx, nil, room.Options{PresenceGrace: time.Minute, TickInterval: time.Hour}, logrus.New())

	w := &ExpiryWorker{Repo: repo, Hub: hub, Notifier: n, Logger: logrus.New(), Interval: time.Hour, ValidityMultiplier: 3}
	w.sweep(ctx)

	assert.ElementsMatch(t, []string{"overdue", "no-window-lapsed"}, n.ended)

	got, _ := repo.GetBySessionID(ctx, "overdue")
	assert.Equal(t, models.StatusExpired, got.Status)
	got, _ = repo.GetBySessionID(ctx, "fresh")
	assert.Equal(t, models.StatusScheduled, got.Status)
	got, _ = repo.GetBySessionID(ctx, "live")
	assert.Equal(t, models.StatusActive, got.Status, "active sessions are never expired by the sweep")
	got, _ = repo.GetBySessionID(ctx, "no-window")
	assert.Equal(t, models.StatusScheduled, got.Status, "an unset window falls back to the derived deadline")
	got, _ = repo.GetBySessionID(ctx, "no-window-lapsed")
	assert.Equal(t, models.StatusExpired, got.Status)
}

func TestExpiryWorker_StartValidatesDeps(t *testing.T) {
	w := &ExpiryWorker{}
	assert.Error(t, w.Start(context.Background()))
}
