package services

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/astromitra/astromitra/internal/cache"
	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/utils"
)

func seedToken(repo *fakeRepo, token string, pt models.ParticipantType) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.tokens[token] = &models.JoinToken{
		Token:           token,
		SessionID:       "sess-1",
		ParticipantID:   string(pt) + "-1",
		ParticipantType: pt,
	}
}

func TestTokenService_ValidReturnsPreJoinContext(t *testing.T) {
	repo := newFakeRepo()
	sess := seedSession(repo, models.StatusScheduled, models.SessionTypeVideo)
	sess.AstrologerName = "Pandit Ravi"
	repo.put(sess)
	seedToken(repo, "tok-u", models.ParticipantUser)

	svc := NewTokenService(repo, nil, 3)
	pc, err := svc.Validate(context.Background(), "tok-u")
	assert.NoError(t, err)
	assert.True(t, pc.Valid)
	assert.Equal(t, "sess-1", pc.SessionID)
	assert.Equal(t, "room-1", pc.RoomID)
	assert.Equal(t, models.SessionTypeVideo, pc.SessionType)
	assert.Equal(t, models.ParticipantUser, pc.ParticipantType)
	assert.Equal(t, "Pandit Ravi", pc.OtherParticipantName)
	assert.Equal(t, 10, pc.PaidDurationMinutes)
}

func TestTokenService_UnknownToken(t *testing.T) {
	repo := newFakeRepo()
	svc := NewTokenService(repo, nil, 3)

	_, err := svc.Validate(context.Background(), "no-such-token")
	assert.True(t, utils.IsCode(err, utils.CodeTokenNotFound))

	_, err = svc.Validate(context.Background(), "")
	assert.True(t, utils.IsCode(err, utils.CodeTokenNotFound))
}

// Expiry wins regardless of session status.
func TestTokenService_ExpiredLinkAlwaysExpired(t *testing.T) {
	for _, status := range []models.SessionStatus{
		models.StatusScheduled, models.StatusJoined, models.StatusActive,
		models.StatusEnded, models.StatusCancelled,
	} {
		repo := newFakeRepo()
		sess := seedSession(repo, status, models.SessionTypeChat)
		sess.LinkValidUntil = time.Now().Add(-time.Minute)
		repo.put(sess)
		seedToken(repo, "tok", models.ParticipantUser)

		svc := NewTokenService(repo, nil, 3)
		_, err := svc.Validate(context.Background(), "tok")
		assert.True(t, utils.IsCode(err, utils.CodeTokenExpired), "status %s", status)
	}
}

func TestTokenService_TerminalReasons(t *testing.T) {
	cases := []struct {
		status models.SessionStatus
		reason string
	}{
		{models.StatusEnded, "already_ended"},
		{models.StatusExpired, "already_ended"},
		{models.StatusCancelled, "cancelled"},
	}
	for _, tc := range cases {
		repo := newFakeRepo()
		seedSession(repo, tc.status, models.SessionTypeChat)
		seedToken(repo, "tok", models.ParticipantAstrologer)

		svc := NewTokenService(repo, nil, 3)
		_, err := svc.Validate(context.Background(), "tok")
		if assert.True(t, utils.IsCode(err, utils.CodeSessionTerminal), "status %s", tc.status) {
			ae := err.(*utils.AppError)
			assert.Equal(t, tc.reason, ae.Message)
		}
	}
}

func TestTokenService_DeadlineFallsBackToMultiplier(t *testing.T) {
	repo := newFakeRepo()
	sess := seedSession(repo, models.StatusScheduled, models.SessionTypeChat)
	sess.ScheduledStartTime = time.Now().Add(-25 * time.Minute)
	sess.LinkValidUntil = time.Time{} // booking layer left it unset
	repo.put(sess)
	seedToken(repo, "tok", models.ParticipantUser)

	// 3 x 10 paid minutes = 30m window; 25m in, still valid
	svc := NewTokenService(repo, nil, 3)
	pc, err := svc.Validate(context.Background(), "tok")
	assert.NoError(t, err)
	assert.True(t, pc.Valid)

	// with a 2x window the same token is already dead
	svc = NewTokenService(repo, nil, 2)
	_, err = svc.Validate(context.Background(), "tok")
	assert.True(t, utils.IsCode(err, utils.CodeTokenExpired))
}

func TestTokenService_ValidationHasNoSideEffects(t *testing.T) {
	repo := newFakeRepo()
	seedSession(repo, models.StatusScheduled, models.SessionTypeChat)
	seedToken(repo, "tok", models.ParticipantUser)

	svc := NewTokenService(repo, nil, 3)
	_, err := svc.Validate(context.Background(), "tok")
	assert.NoError(t, err)

	got, _ := repo.GetBySessionID(context.Background(), "sess-1")
	assert.Equal(t, models.StatusScheduled, got.Status, "validate must not mark joined")
}

func TestTokenService_CachesPreJoinContext(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewRedisCache(rdb, "test")

	repo := newFakeRepo()
	seedSession(repo, models.StatusScheduled, models.SessionTypeChat)
	seedToken(repo, "tok", models.ParticipantUser)

	svc := NewTokenService(repo, c, 3)
	pc1, err := svc.Validate(context.Background(), "tok")
	assert.NoError(t, err)

	// second call is served from cache even if the row vanishes
	repo.mu.Lock()
	delete(repo.tokens, "tok")
	repo.mu.Unlock()

	pc2, err := svc.Validate(context.Background(), "tok")
	assert.NoError(t, err)
	assert.Equal(t, pc1.SessionID, pc2.SessionID)

	// but a lapsed deadline is enforced even on a cache hit
	ts := svc.(*tokenService)
	ts.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(context.Background(), "tok")
	assert.True(t, utils.IsCode(err, utils.CodeTokenExpired))
}
