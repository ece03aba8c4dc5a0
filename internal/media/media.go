package media

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/astromitra/astromitra/internal/models"
)

// Failure modes a client-side adapter surfaces before joining. Each maps
// to a remediation prompt; none of them advances the session past
// scheduled for that participant.
var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrDeviceNotFound   = errors.New("media: device not found")
	ErrUnsupported      = errors.New("media: unsupported")
	ErrNetworkError     = errors.New("media: network error")
)

// Track is an opaque handle to a local or remote media track owned by
// the external provider SDK.
type Track interface {
	ID() string
	Kind() string // audio|video
}

// Adapter is the narrow contract the room core drives on the external
// media provider. Implemented by the provider SDK on each client; the
// server never touches raw media. Unused entirely for chat sessions.
type Adapter interface {
	AcquireLocalTracks(ctx context.Context, mode models.SessionType) ([]Track, error)
	Publish(ctx context.Context, tracks []Track) error
	OnRemoteTrackAvailable(handler func(Track))
	SetMuted(muted bool) error
	SetVideoEnabled(enabled bool) error
	Release() error
}

// Credential is what a participant presents to the media provider to
// join the room's channel.
type Credential struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"room_id"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roomClaims struct {
	jwt.RegisteredClaims
	RoomID   string `json:"room_id"`
	Identity string `json:"identity"`
}

// TokenProvider mints room-scoped provider credentials. This is the
// server half of the media-provider token contract; the provider verifies
// the same HS256 secret.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), ttl: ttl}
}

func (p *TokenProvider) Mint(roomID, participantID string) (*Credential, error) {
	if len(p.secret) == 0 {
		return nil, errors.New("media token secret is not configured")
	}
	now := time.Now().UTC()
	exp := now.Add(p.ttl)
	claims := roomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		RoomID:   roomID,
		Identity: participantID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(p.secret)
	if err != nil {
		return nil, err
	}
	return &Credential{Token: signed, RoomID: roomID, Identity: participantID, ExpiresAt: exp}, nil
}

// Verify parses a minted credential back into its room binding. Used by
// tests and by the mock provider.
func (p *TokenProvider) Verify(token string) (roomID, identity string, err error) {
	claims := &roomClaims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		if err == nil {
			err = jwt.ErrTokenUnverifiable
		}
		return "", "", err
	}
	return claims.RoomID, claims.Identity, nil
}

// Controller instructs provider-side resources to be released when a
// session reaches a terminal state.
type Controller interface {
	ReleaseRoom(ctx context.Context, roomID string) error
}

// RedisController publishes release commands on room:<id>:media; the
// provider bridge and connected clients both listen there.
type RedisController struct {
	rdb *redis.Client
}

func NewRedisController(rdb *redis.Client) *RedisController {
	return &RedisController{rdb: rdb}
}

var _ Controller = (*RedisController)(nil)

func (c *RedisController) ReleaseRoom(ctx context.Context, roomID string) error {
	return c.rdb.Publish(ctx, "room:"+roomID+":media", `{"type":"release"}`).Err()
}
