package workflow

import (
	"testing"
	"time"

	"github.com/mmdatafocus/lessons_backend/models"
)

// fakeWindow mirrors the Redis sorted-set counter: samples scored by time,
// pruned to the rolling window on every read.
type fakeWindow struct {
	samples []time.Time
}

func (w *fakeWindow) record(at time.Time) {
	w.samples = append(w.samples, at)
}

func (w *fakeWindow) countSince(since time.Time) int {
	kept := w.samples[:0]
	for _, s := range w.samples {
		if !s.Before(since) {
			kept = append(kept, s)
		}
	}
	w.samples = kept
	return len(w.samples)
}

func (w *fakeWindow) admit(now time.Time) bool {
	if w.countSince(now.Add(-models.FreeSessionWindow)) >= models.FreeSessionLimit {
		return false
	}
	w.record(now)
	return true
}

func TestFreeSessionWindow_SixthAttemptRejected(t *testing.T) {
	w := &fakeWindow{}
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < models.FreeSessionLimit; i++ {
		if !w.admit(t0.Add(time.Duration(i) * 24 * time.Hour)) {
			t.Fatalf("session %d within the limit was rejected", i+1)
		}
	}
	if w.admit(t0.Add(5 * 24 * time.Hour)) {
		t.Fatal("6th session within the window was admitted")
	}
}

func TestFreeSessionWindow_OldestExpiryReadmits(t *testing.T) {
	w := &fakeWindow{}
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < models.FreeSessionLimit; i++ {
		if !w.admit(t0.Add(time.Duration(i) * time.Hour)) {
			t.Fatalf("session %d within the limit was rejected", i+1)
		}
	}

	// Just inside the window measured from the first sample: still capped.
	if w.admit(t0.Add(models.FreeSessionWindow - time.Minute)) {
		t.Fatal("admitted while all 5 samples still inside the window")
	}
	// Once the oldest sample falls out, one slot frees up.
	if !w.admit(t0.Add(models.FreeSessionWindow + time.Minute)) {
		t.Fatal("not readmitted after the oldest sample left the window")
	}
}

// fakePresence mirrors the TTL-key semantics: available iff a non-expired
// record exists; explicit opt-out deletes immediately.
type fakePresence struct {
	expiry map[string]time.Time
}

func newFakePresence() *fakePresence {
	return &fakePresence{expiry: map[string]time.Time{}}
}

func (p *fakePresence) heartbeat(tutorId string, now time.Time) {
	p.expiry[tutorId] = now.Add(models.PresenceTTL)
}

func (p *fakePresence) offline(tutorId string) {
	delete(p.expiry, tutorId)
}

func (p *fakePresence) available(tutorId string, now time.Time) bool {
	exp, ok := p.expiry[tutorId]
	return ok && now.Before(exp)
}

func TestPresence_ExpiresWithoutHeartbeat(t *testing.T) {
	p := newFakePresence()
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	p.heartbeat("tutor-1", t0)
	if !p.available("tutor-1", t0.Add(models.PresenceTTL-time.Second)) {
		t.Error("unavailable inside the TTL window")
	}
	if p.available("tutor-1", t0.Add(models.PresenceTTL+time.Second)) {
		t.Error("still available past the TTL with no heartbeat")
	}
}

func TestPresence_HeartbeatCadenceKeepsTutorAvailable(t *testing.T) {
	p := newFakePresence()
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	// A client session longer than the TTL, heartbeating on the documented cadence.
	now := t0
	for i := 0; i < 5; i++ {
		p.heartbeat("tutor-1", now)
		next := now.Add(models.PresenceHeartbeatInterval)
		if !p.available("tutor-1", next) {
			t.Fatalf("unavailable at heartbeat %d despite cadence inside TTL", i+1)
		}
		now = next
	}
}

func TestPresence_ExplicitOptOutBeatsTTL(t *testing.T) {
	p := newFakePresence()
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	p.heartbeat("tutor-1", t0)
	p.offline("tutor-1")
	if p.available("tutor-1", t0.Add(time.Second)) {
		t.Error("available after explicit opt-out")
	}
}
