package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/astromitra/astromitra/internal/media"
	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/notifier"
	"github.com/astromitra/astromitra/internal/repositories/postgres"
	"github.com/astromitra/astromitra/internal/room"
	"github.com/astromitra/astromitra/internal/utils"
)

// End reasons persisted to ended_for.
const (
	ReasonExpiry       = "expiry"
	ReasonEndedByUser  = "ended_by_user"
	ReasonEndedByAstro = "ended_by_astrologer"
	ReasonAbandoned    = "abandoned"
	ReasonCancelled    = "cancelled"
)

type SessionService interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Join(ctx context.Context, sessionID string, pt models.ParticipantType) (*models.Session, error)
	End(ctx context.Context, sessionID, reason string) (*models.Session, error)
	Cancel(ctx context.Context, sessionID string) (*models.Session, error)
}

// sessionService is the session state machine and the only writer of the
// persisted status. Every transition is a compare-and-swap on the
// expected current states, so concurrent end triggers (client end, timer
// expiry, abandonment) collapse to exactly one transition.
type sessionService struct {
	repo  postgres.SessionRepository
	hub   *room.Hub
	notif notifier.Notifier
	media media.Controller
	log   *logrus.Logger
}

func NewSessionService(repo postgres.SessionRepository, hub *room.Hub, n notifier.Notifier, mc media.Controller, log *logrus.Logger) *sessionService {
	return &sessionService{repo: repo, hub: hub, notif: n, media: mc, log: log}
}

var _ SessionService = (*sessionService)(nil)
var _ room.Lifecycle = (*sessionService)(nil)

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

// Join performs the scheduled->joined side effect for one participant and
// makes sure the live room exists. Idempotent: repeat calls from a
// participant already counted are a success.
func (s *sessionService) Join(ctx context.Context, sessionID string, pt models.ParticipantType) (*models.Session, error) {
	const op = "SessionService.Join"

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, utils.E(utils.CodeSessionTerminal, op, "session already "+string(sess.Status), nil)
	}

	now := time.Now().UTC()
	swapped, err := s.repo.TransitionStatus(ctx, sessionID,
		[]models.SessionStatus{models.StatusScheduled},
		models.StatusJoined,
		map[string]any{"joined_at": now})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to mark session joined", err)
	}
	if swapped {
		sess.Status = models.StatusJoined
		sess.JoinedAt = &now
		s.notif.SessionJoined(ctx, sessionID, pt)
	}

	s.hub.GetOrCreate(sess)
	return sess, nil
}

// End moves the session to ended and tears the room down. Idempotent:
// ending a terminal session is a no-op success reporting the recorded
// elapsed seconds.
func (s *sessionService) End(ctx context.Context, sessionID, reason string) (*models.Session, error) {
	return s.finish(ctx, "SessionService.End", sessionID, models.StatusEnded, reason,
		[]models.SessionStatus{models.StatusScheduled, models.StatusJoined, models.StatusActive})
}

// Cancel is the booking layer's kill switch; it wins from any
// non-terminal state.
func (s *sessionService) Cancel(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.finish(ctx, "SessionService.Cancel", sessionID, models.StatusCancelled, ReasonCancelled,
		[]models.SessionStatus{models.StatusScheduled, models.StatusJoined, models.StatusActive})
}

func (s *sessionService) finish(ctx context.Context, op, sessionID string, to models.SessionStatus, reason string, from []models.SessionStatus) (*models.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return sess, nil
	}

	elapsed := sess.ElapsedSeconds
	if r, ok := s.hub.Get(sess.RoomID); ok {
		if e := r.Elapsed(); e > elapsed {
			elapsed = e
		}
	}

	now := time.Now().UTC()
	var swapped bool
	err = withRetry(func() error {
		var terr error
		swapped, terr = s.repo.TransitionStatus(ctx, sessionID, from, to, map[string]any{
			"elapsed_seconds": elapsed,
			"ended_at":        now,
			"ended_for":       reason,
		})
		return terr
	})
	if err != nil {
		// leaving a session stuck in active blocks settlement; surface
		// loudly after the retries are spent
		s.log.WithError(err).WithField("session_id", sessionID).Error("status write failed after retries")
		return nil, utils.E(utils.CodeUnavailable, op, "failed to persist final status", err)
	}

	if !swapped {
		// lost the race to another end trigger; report its outcome
		return s.Get(ctx, sessionID)
	}

	s.teardown(ctx, sess, to, elapsed, reason)

	sess.Status = to
	sess.ElapsedSeconds = elapsed
	sess.EndedAt = &now
	sess.EndedFor = reason
	return sess, nil
}

func (s *sessionService) teardown(ctx context.Context, sess *models.Session, status models.SessionStatus, elapsed int64, reason string) {
	s.hub.Teardown(sess.RoomID, status, elapsed, reason)

	// chat sessions never touch the media provider
	if sess.SessionType != models.SessionTypeChat && s.media != nil {
		if err := s.media.ReleaseRoom(ctx, sess.RoomID); err != nil {
			s.log.WithError(err).WithField("room_id", sess.RoomID).Warn("media release failed")
		}
	}

	s.notif.SessionEnded(ctx, sess.SessionID, status, elapsed, reason)
}

// --- room.Lifecycle ---

// HandleBothPresent is the only trigger for joined->active.
func (s *sessionService) HandleBothPresent(ctx context.Context, sessionID string) (int64, bool) {
	swapped, err := s.repo.TransitionStatus(ctx, sessionID,
		[]models.SessionStatus{models.StatusJoined},
		models.StatusActive, nil)
	if err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Error("activate failed")
		return 0, false
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return 0, false
	}
	if swapped || sess.Status == models.StatusActive {
		return sess.ElapsedSeconds, true
	}
	return 0, false
}

func (s *sessionService) HandleTimerExpired(ctx context.Context, sessionID string) {
	if _, err := s.End(ctx, sessionID, ReasonExpiry); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Error("end on expiry failed")
	}
}

func (s *sessionService) HandleAbandoned(ctx context.Context, sessionID string) {
	if _, err := s.End(ctx, sessionID, ReasonAbandoned); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Error("end on abandonment failed")
	}
}

func (s *sessionService) HandleParticipantJoined(ctx context.Context, sessionID string, pt models.ParticipantType) {
	s.log.WithFields(logrus.Fields{"session_id": sessionID, "participant_type": pt}).Debug("presence join")
}

func (s *sessionService) HandleParticipantLeft(ctx context.Context, sessionID string, pt models.ParticipantType) {
	s.log.WithFields(logrus.Fields{"session_id": sessionID, "participant_type": pt}).Debug("presence leave")
}

func (s *sessionService) PersistElapsed(ctx context.Context, sessionID string, elapsed int64) {
	if err := s.repo.SetElapsedSeconds(ctx, sessionID, elapsed); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("elapsed write failed")
	}
}

func withRetry(fn func() error) error {
	var err error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}
