package room

import (
	"sync"
	"time"

	"github.com/astromitra/astromitra/internal/models"
	"github.com/astromitra/astromitra/internal/utils"
)

const (
	EventMessage         = "message"
	EventParticipantJoin = "participant-joined"
	EventParticipantLeft = "participant-left"
	EventSessionEnded    = "session-ended"
)

// Event is what a subscribed client receives over its room channel.
type Event struct {
	Type           string                 `json:"type"`
	Message        *models.RoomMessage    `json:"message,omitempty"`
	Participant    models.ParticipantType `json:"participant,omitempty"`
	Status         models.SessionStatus   `json:"status,omitempty"`
	ElapsedSeconds int64                  `json:"elapsed_seconds,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Relay exchanges messages between exactly the two parties of one room.
// A send goes to the other role only: no echo to the sender and no path
// to any other room. Sends are serialized under one lock and delivered
// through a per-subscriber ordered channel, so the receiver observes each
// sender's messages in send order.
type Relay struct {
	mu     sync.Mutex
	roomID string
	subs   map[models.ParticipantType]*subscriber

	maxFileBytes int64
	seq          int64
	lastTS       time.Time
	now          func() time.Time
	closed       bool
}

const relayBuffer = 256

func NewRelay(roomID string, maxFileBytes int64) *Relay {
	return &Relay{
		roomID:       roomID,
		subs:         make(map[models.ParticipantType]*subscriber),
		maxFileBytes: maxFileBytes,
		now:          time.Now,
	}
}

// Subscribe returns the event channel for the given role. A second
// subscribe from the same role (reconnect) replaces and closes the prior
// channel.
func (r *Relay) Subscribe(pt models.ParticipantType) <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.subs[pt]; ok {
		close(prev.ch)
	}
	s := &subscriber{ch: make(chan Event, relayBuffer)}
	r.subs[pt] = s
	return s.ch
}

// Unsubscribe removes the role's subscription, but only when ch is still
// the live channel. A stale connection racing its own replacement must
// not close the reconnected subscriber.
func (r *Relay) Unsubscribe(pt models.ParticipantType, ch <-chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[pt]
	if !ok || ch != s.ch {
		return
	}
	close(s.ch)
	delete(r.subs, pt)
}

// Send relays msg to the other participant. The relay assigns Seq and a
// monotonically non-decreasing Timestamp. Ephemeral kinds (typing) are
// dropped silently when the receiver is backed up; durable kinds surface
// an error so the caller can retry or report the failure to the sender.
func (r *Relay) Send(msg *models.RoomMessage) error {
	const op = "Relay.Send"

	if msg.Kind == models.KindFile && r.maxFileBytes > 0 && int64(len(msg.Payload)) > r.maxFileBytes {
		return utils.E(utils.CodePayloadTooLarge, op, "file payload exceeds limit", nil)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return utils.E(utils.CodeUnavailable, op, "room closed", nil)
	}
	ts := r.now()
	if ts.Before(r.lastTS) {
		ts = r.lastTS
	}
	r.lastTS = ts
	r.seq++
	msg.RoomID = r.roomID
	msg.Timestamp = ts
	msg.Seq = r.seq

	other := models.ParticipantUser
	if msg.SenderType == models.ParticipantUser {
		other = models.ParticipantAstrologer
	}
	sub, ok := r.subs[other]
	if !ok {
		r.mu.Unlock()
		if msg.Kind.Ephemeral() {
			return nil
		}
		return utils.E(utils.CodeUnavailable, op, "other participant not connected", nil)
	}

	select {
	case sub.ch <- Event{Type: EventMessage, Message: msg}:
		r.mu.Unlock()
		return nil
	default:
		r.mu.Unlock()
		if msg.Kind.Ephemeral() {
			return nil
		}
		return utils.E(utils.CodeUnavailable, op, "receiver queue full", nil)
	}
}

// Broadcast pushes a system event to both parties, best effort.
func (r *Relay) Broadcast(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, s := range r.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Close broadcasts nothing and shuts every subscriber channel.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for pt, s := range r.subs {
		close(s.ch)
		delete(r.subs, pt)
	}
}
