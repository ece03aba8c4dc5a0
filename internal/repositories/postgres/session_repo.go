package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/utils"
)

type SessionRepository interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	GetByRoomID(ctx context.Context, roomID string) (*models.Session, error)
	GetToken(ctx context.Context, token string) (*models.JoinToken, error)

	// TransitionStatus is the single status-write primitive: a
	// compare-and-swap that succeeds only when the current status is one
	// of `from`. Returns false when no row matched (someone else won the
	// race or the session is unknown).
	TransitionStatus(ctx context.Context, sessionID string, from []models.SessionStatus, to models.SessionStatus, set map[string]any) (bool, error)

	SetElapsedSeconds(ctx context.Context, sessionID string, elapsed int64) error

	// ExpireOverdue marks every scheduled/joined session whose join window
	// lapsed before cutoff as expired and returns the affected ids.
	// Sessions without an explicit link_valid_until are judged by the
	// derived deadline (scheduled start plus multiplier times the paid
	// duration), never by the zero timestamp.
	ExpireOverdue(ctx context.Context, cutoff time.Time, validityMultiplier int) ([]string, error)
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) GetByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) GetToken(ctx context.Context, token string) (*models.JoinToken, error) {
	var t models.JoinToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, sessionID string, from []models.SessionStatus, to models.SessionStatus, set map[string]any) (bool, error) {
	values := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("session_id = ? AND status IN ?", sessionID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) SetElapsedSeconds(ctx context.Context, sessionID string, elapsed int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("session_id = ?", sessionID).
		Update("elapsed_seconds", elapsed).Error
}

func (r *sessionRepo) ExpireOverdue(ctx context.Context, cutoff time.Time, validityMultiplier int) ([]string, error) {
	// the SQL prefilter also matches rows with an unset (zero) deadline;
	// overdueBefore settles those against the derived one
	var candidates []models.Session
	err := r.db.WithContext(ctx).
		Where("status IN ? AND link_valid_until < ?", []models.SessionStatus{models.StatusScheduled, models.StatusJoined}, cutoff).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var ids []string
	for i := range candidates {
		if !overdueBefore(&candidates[i], validityMultiplier, cutoff) {
			continue
		}
		_, err := r.TransitionStatus(ctx, candidates[i].SessionID,
			[]models.SessionStatus{models.StatusScheduled, models.StatusJoined},
			models.StatusExpired,
			map[string]any{"ended_for": "expiry"})
		if err != nil {
			return ids, err
		}
		ids = append(ids, candidates[i].SessionID)
	}
	return ids, nil
}

// overdueBefore reports whether the session's join window, explicit or
// derived, lapsed before cutoff.
func overdueBefore(s *models.Session, validityMultiplier int, cutoff time.Time) bool {
	return s.JoinDeadline(validityMultiplier).Before(cutoff)
}
