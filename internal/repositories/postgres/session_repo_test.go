package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/astromitra/astromitra/internal/models"
)

func TestOverdueBefore(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		sess models.Session
		want bool
	}{
		{
			name: "explicit window lapsed",
			sess: models.Session{LinkValidUntil: cutoff.Add(-time.Minute)},
			want: true,
		},
		{
			name: "explicit window open",
			sess: models.Session{LinkValidUntil: cutoff.Add(time.Minute)},
			want: false,
		},
		{
			// zero link_valid_until must never read as an expired window
			name: "unset window, derived deadline open",
			sess: models.Session{
				ScheduledStartTime:  cutoff.Add(-10 * time.Minute),
				PaidDurationMinutes: 10,
			},
			want: false,
		},
		{
			name: "unset window, derived deadline lapsed",
			sess: models.Session{
				ScheduledStartTime:  cutoff.Add(-2 * time.Hour),
				PaidDurationMinutes: 10,
			},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, overdueBefore(&tc.sess, 3, cutoff))
		})
	}
}
