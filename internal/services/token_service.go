package services

import (
	"context"
	"errors"
	"time"

	"github.com/astromitra/astromitra/internal/cache"
	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/repositories/postgres"
	"github.com/astromitra/astromitra/internal/utils"
)

// PreJoinContext is everything the pre-join screen needs. Returned by
// Validate without any side effect; joining is a separate call.
type PreJoinContext struct {
	Valid                bool                   `json:"valid"`
	SessionID            string                 `json:"session_id"`
	RoomID               string                 `json:"room_id"`
	SessionType          models.SessionType     `json:"session_type"`
	ParticipantID        string                 `json:"participant_id"`
	ParticipantType      models.ParticipantType `json:"participant_type"`
	OtherParticipantName string                 `json:"other_participant_name"`
	PaidDurationMinutes  int                    `json:"paid_duration_minutes"`
	Status               models.SessionStatus   `json:"status"`
	ScheduledStartTime   time.Time              `json:"scheduled_start_time"`
	LinkValidUntil       time.Time              `json:"link_valid_until"`
}

type TokenService interface {
	Validate(ctx context.Context, token string) (*PreJoinContext, error)
}

type tokenService struct {
	repo       postgres.SessionRepository
	cache      cache.Cache
	multiplier int
	now        func() time.Time
}

const preJoinCacheTTL = 15 * time.Second

func NewTokenService(repo postgres.SessionRepository, c cache.Cache, validityMultiplier int) TokenService {
	return &tokenService{repo: repo, cache: c, multiplier: validityMultiplier, now: time.Now}
}

func (t *tokenService) Validate(ctx context.Context, token string) (*PreJoinContext, error) {
	const op = "TokenService.Validate"

	if token == "" {
		return nil, utils.E(utils.CodeTokenNotFound, op, "not_found", nil)
	}

	if t.cache != nil {
		var cached PreJoinContext
		if hit, _ := t.cache.GetJSON(ctx, "prejoin:"+token, &cached); hit {
			// expiry is a hard deadline, never served stale
			if t.now().After(cached.LinkValidUntil) {
				return nil, utils.E(utils.CodeTokenExpired, op, "expired", nil)
			}
			return &cached, nil
		}
	}

	jt, err := t.repo.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeTokenNotFound, op, "not_found", nil)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up token", err)
	}

	sess, err := t.repo.GetBySessionID(ctx, jt.SessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeTokenNotFound, op, "not_found", nil)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load session", err)
	}

	// expiry wins over status: a lapsed link is "expired" even on a
	// session someone already ended
	deadline := sess.JoinDeadline(t.multiplier)
	if t.now().After(deadline) {
		return nil, utils.E(utils.CodeTokenExpired, op, "expired", nil)
	}

	if sess.Status.Terminal() {
		reason := "already_ended"
		if sess.Status == models.StatusCancelled {
			reason = "cancelled"
		}
		return nil, utils.E(utils.CodeSessionTerminal, op, reason, nil)
	}

	pc := &PreJoinContext{
		Valid:                true,
		SessionID:            sess.SessionID,
		RoomID:               sess.RoomID,
		SessionType:          sess.SessionType,
		ParticipantID:        jt.ParticipantID,
		ParticipantType:      jt.ParticipantType,
		OtherParticipantName: sess.CounterpartName(jt.ParticipantType),
		PaidDurationMinutes:  sess.PaidDurationMinutes,
		Status:               sess.Status,
		ScheduledStartTime:   sess.ScheduledStartTime,
		LinkValidUntil:       deadline,
	}
	if t.cache != nil {
		_ = t.cache.SetJSON(ctx, "prejoin:"+token, pc, preJoinCacheTTL)
	}
	return pc, nil
}
