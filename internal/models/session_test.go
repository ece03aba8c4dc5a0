package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_JoinDeadlineExplicitWindowWins(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{
		ScheduledStartTime:  until.Add(-5 * time.Hour),
		PaidDurationMinutes: 30,
		LinkValidUntil:      until,
	}
	assert.Equal(t, until, s.JoinDeadline(3))
}

func TestSession_JoinDeadlineDerivedWhenUnset(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{
		ScheduledStartTime:  start,
		PaidDurationMinutes: 10,
	}
	assert.Equal(t, start.Add(30*time.Minute), s.JoinDeadline(3))
}

func TestSession_JoinDeadlineClampsMultiplier(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{
		ScheduledStartTime:  start,
		PaidDurationMinutes: 10,
	}
	assert.Equal(t, start.Add(10*time.Minute), s.JoinDeadline(0))
}
