package config

import (
	"os"
	"strconv"
	"time"
)

// Room holds the tunables of the live room core. All values come from the
// environment; defaults match the hosted deployment.
type Room struct {
	// PresenceGrace is how long a silent participant keeps their presence
	// entry before the reaper deregisters them. Distinguishes a reconnect
	// blip from an actual leave.
	PresenceGrace time.Duration

	// TickInterval is the countdown clock resolution.
	TickInterval time.Duration

	// MaxFilePayloadBytes caps inline file messages on the relay.
	MaxFilePayloadBytes int64

	// LinkValidityMultiplier derives link_valid_until from the paid
	// duration when the booking layer did not set one. Business config,
	// not a core invariant.
	LinkValidityMultiplier int

	// ExpirySweepInterval is how often the sweep worker looks for
	// sessions whose join window has lapsed.
	ExpirySweepInterval time.Duration

	// MediaTokenSecret signs room credentials for the media provider.
	MediaTokenSecret string

	// MediaTokenTTL bounds how long a minted credential stays usable.
	MediaTokenTTL time.Duration
}

func LoadRoom() Room {
	return Room{
		PresenceGrace:          envSeconds("PRESENCE_GRACE_SECONDS", 45),
		TickInterval:           time.Second,
		MaxFilePayloadBytes:    envInt64("MAX_FILE_PAYLOAD_BYTES", 4<<20),
		LinkValidityMultiplier: envInt("LINK_VALIDITY_MULTIPLIER", 3),
		ExpirySweepInterval:    envSeconds("EXPIRY_SWEEP_SECONDS", 60),
		MediaTokenSecret:       os.Getenv("MEDIA_TOKEN_SECRET"),
		MediaTokenTTL:          envSeconds("MEDIA_TOKEN_TTL_SECONDS", 3600),
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}
