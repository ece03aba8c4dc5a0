package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/notifier"
	"github.com/astromitra/astromitra/internal/repositories/postgres"
	"github.com/astromitra/astromitra/internal/room"
)

// ExpiryWorker sweeps sessions whose join window lapsed while still
// scheduled or joined and marks them expired. Runs out of the synchronous
// request path on a fixed interval.
type ExpiryWorker struct {
	Repo     postgres.SessionRepository
	Hub      *room.Hub
	Notifier notifier.Notifier
	Logger   *logrus.Logger

	Interval time.Duration

	// ValidityMultiplier feeds the derived join deadline for sessions the
	// booking layer left without an explicit link_valid_until.
	ValidityMultiplier int
}

func (w *ExpiryWorker) Start(ctx context.Context) error {
	if w.Repo == nil || w.Hub == nil || w.Notifier == nil {
		return errors.New("ExpiryWorker missing dependency: Repo/Hub/Notifier must be set")
	}
	if w.Interval <= 0 {
		w.Interval = time.Minute
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}

	go w.run(ctx)
	return nil
}

func (w *ExpiryWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	ids, err := w.Repo.ExpireOverdue(ctx, time.Now().UTC(), w.ValidityMultiplier)
	if err != nil {
		w.Logger.WithError(err).Warn("expiry sweep failed")
		time.Sleep(500 * time.Millisecond)
		return
	}

	for _, id := range ids {
		w.Logger.WithField("session_id", id).Info("session expired before both parties joined")
		if r, ok := w.Hub.GetBySessionID(id); ok {
			w.Hub.Teardown(r.RoomID, models.StatusExpired, r.Elapsed(), "expiry")
		}
		w.Notifier.SessionEnded(ctx, id, models.StatusExpired, 0, "expiry")
	}
}
