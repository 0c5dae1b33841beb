package workflow

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/lessons_backend/models"
)

func TestMaxRecalcPriority(t *testing.T) {
	cases := []struct {
		a, b, want models.RecalcPriority
	}{
		{models.RecalcPriorityNormal, models.RecalcPriorityNormal, models.RecalcPriorityNormal},
		{models.RecalcPriorityNormal, models.RecalcPriorityHigh, models.RecalcPriorityHigh},
		{models.RecalcPriorityHigh, models.RecalcPriorityNormal, models.RecalcPriorityHigh},
		{models.RecalcPriorityHigh, models.RecalcPriorityHigh, models.RecalcPriorityHigh},
	}
	for _, c := range cases {
		if got := models.MaxRecalcPriority(c.a, c.b); got != c.want {
			t.Errorf("MaxRecalcPriority(%s, %s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

// fakeRecalcQueue models the merge-on-enqueue semantics of
// EnqueueRecalculation / NextUnprocessedEntry without a database: one
// unprocessed entry per profile, priority promoted to max, reason replaced
// with the latest, enqueued_at never reset.
type fakeRecalcQueue struct {
	mu      sync.Mutex
	entries []*models.RecalculationQueueEntry
	nextId  int
}

func (q *fakeRecalcQueue) enqueue(profileId string, reason models.RecalcReason, priority models.RecalcPriority, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.ProfileId == profileId && e.ProcessedAt == nil {
			e.Priority = models.MaxRecalcPriority(e.Priority, priority)
			e.Reason = reason
			return
		}
	}
	q.nextId++
	q.entries = append(q.entries, &models.RecalculationQueueEntry{
		ID:         q.nextId,
		ProfileId:  profileId,
		Reason:     reason,
		Priority:   priority,
		EnqueuedAt: at,
	})
}

func (q *fakeRecalcQueue) dequeueNext() *models.RecalculationQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	unprocessed := make([]*models.RecalculationQueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.ProcessedAt == nil {
			unprocessed = append(unprocessed, e)
		}
	}
	if len(unprocessed) == 0 {
		return nil
	}
	sort.SliceStable(unprocessed, func(i, j int) bool {
		if unprocessed[i].Priority.Rank() != unprocessed[j].Priority.Rank() {
			return unprocessed[i].Priority.Rank() > unprocessed[j].Priority.Rank()
		}
		return unprocessed[i].EnqueuedAt.Before(unprocessed[j].EnqueuedAt)
	})
	return unprocessed[0]
}

func (q *fakeRecalcQueue) unprocessedCount(profileId string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.ProfileId == profileId && e.ProcessedAt == nil {
			n++
		}
	}
	return n
}

func TestRecalcQueue_MergePromotesPriority(t *testing.T) {
	q := &fakeRecalcQueue{}
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	q.enqueue("tutor-1", models.RecalcReasonPaymentSettled, models.RecalcPriorityNormal, t0)
	q.enqueue("tutor-1", models.RecalcReasonFreeSessionCompleted, models.RecalcPriorityHigh, t0.Add(time.Minute))

	if n := q.unprocessedCount("tutor-1"); n != 1 {
		t.Fatalf("unprocessed entries = %d, want 1", n)
	}
	head := q.dequeueNext()
	if head.Priority != models.RecalcPriorityHigh {
		t.Errorf("priority = %s, want High", head.Priority)
	}
	if head.Reason != models.RecalcReasonFreeSessionCompleted {
		t.Errorf("reason = %s, want latest", head.Reason)
	}
	if !head.EnqueuedAt.Equal(t0) {
		t.Errorf("enqueued_at reset to %s, want original %s", head.EnqueuedAt, t0)
	}
}

func TestRecalcQueue_MergeNeverDowngrades(t *testing.T) {
	q := &fakeRecalcQueue{}
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	q.enqueue("tutor-1", models.RecalcReasonFreeSessionCompleted, models.RecalcPriorityHigh, t0)
	q.enqueue("tutor-1", models.RecalcReasonPaymentSettled, models.RecalcPriorityNormal, t0.Add(time.Minute))

	if head := q.dequeueNext(); head.Priority != models.RecalcPriorityHigh {
		t.Errorf("priority downgraded to %s", head.Priority)
	}
}

func TestRecalcQueue_DequeueOrder(t *testing.T) {
	q := &fakeRecalcQueue{}
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	q.enqueue("tutor-a", models.RecalcReasonPaymentSettled, models.RecalcPriorityNormal, t0)
	q.enqueue("tutor-b", models.RecalcReasonPaymentSettled, models.RecalcPriorityNormal, t0.Add(time.Minute))
	q.enqueue("tutor-c", models.RecalcReasonFreeSessionCompleted, models.RecalcPriorityHigh, t0.Add(2*time.Minute))
	q.enqueue("tutor-d", models.RecalcReasonFreeSessionCompleted, models.RecalcPriorityHigh, t0.Add(3*time.Minute))

	wantOrder := []string{"tutor-c", "tutor-d", "tutor-a", "tutor-b"}
	for _, want := range wantOrder {
		head := q.dequeueNext()
		if head == nil || head.ProfileId != want {
			t.Fatalf("dequeue order wrong: got %+v, want profile %s", head, want)
		}
		now := time.Now()
		head.ProcessedAt = &now
	}
	if q.dequeueNext() != nil {
		t.Error("queue should be drained")
	}
}

func TestRecalcQueue_ConcurrentEnqueuesLeaveOneEntry(t *testing.T) {
	q := &fakeRecalcQueue{}
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			priority := models.RecalcPriorityNormal
			if i%2 == 0 {
				priority = models.RecalcPriorityHigh
			}
			q.enqueue("tutor-1", models.RecalcReasonPaymentSettled, priority, t0)
		}(i)
	}
	wg.Wait()

	if n := q.unprocessedCount("tutor-1"); n != 1 {
		t.Fatalf("unprocessed entries = %d, want 1", n)
	}
	if head := q.dequeueNext(); head.Priority != models.RecalcPriorityHigh {
		t.Errorf("priority = %s, want High after any high enqueue", head.Priority)
	}
}
