package models

import (
	"time"

	"github.com/mmdatafocus/lessons_backend/config"
)

// Presence is a Redis-TTL signal, not a table. "Available" means the key
// exists and has not expired; there is no separate boolean to drift out of
// sync with the TTL truth. A tutor who stops heartbeating flips to
// unavailable by expiry alone, with no explicit write.
const (
	// PresenceTTL bounds how long a tutor stays available without a heartbeat.
	PresenceTTL = 5 * time.Minute

	// PresenceHeartbeatInterval is the documented client cadence. It sits
	// inside the TTL so a live session keeps the tutor available.
	PresenceHeartbeatInterval = 4 * time.Minute

	// FreeSessionWindow / FreeSessionLimit: a client may take at most
	// FreeSessionLimit free sessions per rolling window.
	FreeSessionWindow = 7 * 24 * time.Hour
	FreeSessionLimit  = 5

	// FreeSessionDurationMinutes is the fixed length of a free-help booking.
	FreeSessionDurationMinutes = 30
)

func presenceKey(tutorId string) string {
	return "presence:" + tutorId
}

func freeSessionKey(clientId, tutorId string) string {
	if config.FreeSessionLimitScope() == "pair" {
		return "freehelp:" + clientId + ":" + tutorId
	}
	return "freehelp:" + clientId
}

// SetTutorAvailable writes the presence record with a fresh TTL.
// Heartbeats are identical in effect: refresh-or-create.
func SetTutorAvailable(tutorId string) error {
	return config.SetRedisValue(presenceKey(tutorId), "1", PresenceTTL)
}

// SetTutorUnavailable deletes the record immediately. Explicit opt-out takes
// effect faster than passive expiry.
func SetTutorUnavailable(tutorId string) error {
	return config.RemoveRedisKey(presenceKey(tutorId))
}

func IsTutorAvailable(tutorId string) (bool, error) {
	return config.RedisKeyExists(presenceKey(tutorId))
}

// RecordFreeSession adds one sample to the client's sliding window.
// Recorded at admission time so a client cannot farm admissions by
// abandoning sessions before completion.
func RecordFreeSession(clientId, tutorId, bookingId string, at time.Time) error {
	return config.AddRedisWindowSample(freeSessionKey(clientId, tutorId), bookingId, at)
}

// CountFreeSessionsInWindow prunes expired samples and counts the rest.
func CountFreeSessionsInWindow(clientId, tutorId string, now time.Time) (int64, error) {
	return config.CountRedisWindowSince(freeSessionKey(clientId, tutorId), now.Add(-FreeSessionWindow))
}
