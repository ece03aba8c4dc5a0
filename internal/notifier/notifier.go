package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/astromitra/astromitra/internal/models"
)

// Notifier carries domain events out of the room core to the booking
// layer (settlement, push notifications). The core never blocks on it.
type Notifier interface {
	SessionJoined(ctx context.Context, sessionID string, pt models.ParticipantType)
	SessionEnded(ctx context.Context, sessionID string, status models.SessionStatus, elapsedSeconds int64, reason string)
}

type Event struct {
	Type           string                 `json:"type"`
	SessionID      string                 `json:"session_id"`
	Participant    models.ParticipantType `json:"participant,omitempty"`
	Status         models.SessionStatus   `json:"status,omitempty"`
	ElapsedSeconds int64                  `json:"elapsed_seconds,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	At             time.Time              `json:"at"`
}

// RedisNotifier publishes events to session:<id>:events. Delivery is
// fire-and-forget; the booking layer owns durability.
type RedisNotifier struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *logrus.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, log: log}
}

var _ Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) publish(ctx context.Context, ev Event) {
	ev.At = time.Now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := n.rdb.Publish(ctx, "session:"+ev.SessionID+":events", string(b)).Err(); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{
			"session_id": ev.SessionID,
			"event":      ev.Type,
		}).Warn("event publish failed")
	}
}

func (n *RedisNotifier) SessionJoined(ctx context.Context, sessionID string, pt models.ParticipantType) {
	n.publish(ctx, Event{Type: "session_joined", SessionID: sessionID, Participant: pt})
}

func (n *RedisNotifier) SessionEnded(ctx context.Context, sessionID string, status models.SessionStatus, elapsed int64, reason string) {
	n.publish(ctx, Event{Type: "session_ended", SessionID: sessionID, Status: status, ElapsedSeconds: elapsed, Reason: reason})
}
