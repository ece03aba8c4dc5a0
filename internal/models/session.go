package models

import (
	"time"
)

type SessionType string

const (
	SessionTypeChat  SessionType = "chat"
	SessionTypeVoice SessionType = "voice"
	SessionTypeVideo SessionType = "video"
)

type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusJoined    SessionStatus = "joined"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
	StatusExpired   SessionStatus = "expired"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether s is one of the final states. Terminal sessions
// never transition again; re-ending them is a no-op success.
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusExpired || s == StatusCancelled
}

type ParticipantType string

const (
	ParticipantUser       ParticipantType = "user"
	ParticipantAstrologer ParticipantType = "astrologer"
)

// Session is the booking layer's record of one scheduled consultation.
// The room core writes only status, elapsed_seconds and the join/end
// timestamps; everything else (pricing, settlement) belongs to the
// booking service.
type Session struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	SessionID string `gorm:"uniqueIndex;size:64" json:"session_id"` // uuid v4
	RoomID    string `gorm:"uniqueIndex;size:64" json:"room_id"`

	UserParticipantID       string `gorm:"size:64" json:"user_participant_id"`
	AstrologerParticipantID string `gorm:"size:64" json:"astrologer_participant_id"`
	UserName                string `gorm:"size:128" json:"user_name"`
	AstrologerName          string `gorm:"size:128" json:"astrologer_name"`

	SessionType SessionType   `gorm:"size:16" json:"session_type"` // chat|voice|video
	Status      SessionStatus `gorm:"size:16;index" json:"status"`

	ScheduledStartTime  time.Time `json:"scheduled_start_time"`
	PaidDurationMinutes int       `json:"paid_duration_minutes"`
	LinkValidUntil      time.Time `gorm:"index" json:"link_valid_until"`
	ElapsedSeconds      int64     `json:"elapsed_seconds"`

	JoinedAt *time.Time `json:"joined_at,omitempty"`
	EndedAt  *time.Time `json:"ended_at,omitempty"`
	EndedFor string     `gorm:"size:32" json:"ended_for,omitempty"` // expiry|ended_by_user|ended_by_astrologer|abandoned|cancelled

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// ParticipantID returns the participant id bound to the given role.
func (s *Session) ParticipantID(pt ParticipantType) string {
	if pt == ParticipantAstrologer {
		return s.AstrologerParticipantID
	}
	return s.UserParticipantID
}

// JoinDeadline is the absolute limit for joining. Falls back to the
// given multiple of the paid duration past the scheduled start when the
// booking layer did not set an explicit window.
func (s *Session) JoinDeadline(multiplier int) time.Time {
	if !s.LinkValidUntil.IsZero() {
		return s.LinkValidUntil
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return s.ScheduledStartTime.Add(time.Duration(multiplier*s.PaidDurationMinutes) * time.Minute)
}

// CounterpartName is the display name shown on the pre-join screen.
func (s *Session) CounterpartName(pt ParticipantType) string {
	if pt == ParticipantAstrologer {
		return s.UserName
	}
	return s.AstrologerName
}

// JoinToken binds an opaque one-time credential to a participant+session
// pair. Issued by the booking flow; the room core only reads it.
type JoinToken struct {
	ID              uint            `gorm:"primaryKey" json:"-"`
	Token           string          `gorm:"uniqueIndex;size:128" json:"token"`
	SessionID       string          `gorm:"index;size:64" json:"session_id"`
	ParticipantID   string          `gorm:"size:64" json:"participant_id"`
	ParticipantType ParticipantType `gorm:"size:16" json:"participant_type"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (JoinToken) TableName() string { return "join_tokens" }
