package utils

import "errors"

// Settlement error taxonomy. Callers branch on these with errors.Is.
var (
	// ErrorRecordNotFound signals a booking, payout or profile that does not
	// exist. Non-retryable: a compensation event for an unknown payout is an
	// upstream data or delivery-ordering bug, not a routine miss.
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorAlreadyProcessed is returned alongside the prior result on an
	// idempotent replay. Not a failure.
	ErrorAlreadyProcessed = errors.New("already processed")

	// ErrorContention means the settlement lock is held by another worker.
	// The caller retries with backoff; the engine never retries itself.
	ErrorContention = errors.New("settlement lock contention")

	// ErrorInvariantViolation means a computed split does not sum to zero or
	// a context snapshot is missing a required field. The whole operation is
	// rolled back; nothing is committed.
	ErrorInvariantViolation = errors.New("ledger invariant violation")

	// ErrorRateLimited is the free-session cap rejection. User-visible.
	ErrorRateLimited = errors.New("free session limit reached")

	// ErrorUnavailable means the tutor's presence record has expired.
	ErrorUnavailable = errors.New("tutor not available")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
