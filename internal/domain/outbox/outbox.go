package outbox

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds publish retries before a record is parked
// as permanently failed and surfaced for operator attention.
const DefaultMaxAttempts = 5

// Record is a transactional outbox row. It is inserted in the same
// transaction as the ledger mutation that emitted the event, and mutated
// only by the relay afterwards.
type Record struct {
	ID               uuid.UUID
	EventType        string
	Content          []byte
	OccurredOnUTC    time.Time
	ProcessedOnUTC   *time.Time
	ClaimedOnUTC     *time.Time
	AttemptCount     int
	MaxAttemptCount  int
	NextAttemptOnUTC *time.Time
	LastErrorMessage *string
}

// NewRecord creates an unprocessed record for a serialized event.
func NewRecord(eventType string, content []byte) *Record {
	return &Record{
		ID:              uuid.New(),
		EventType:       eventType,
		Content:         content,
		OccurredOnUTC:   time.Now().UTC(),
		AttemptCount:    0,
		MaxAttemptCount: DefaultMaxAttempts,
	}
}

// IsExhausted reports whether the record has consumed all attempts.
func (r *Record) IsExhausted() bool {
	return r.AttemptCount >= r.MaxAttemptCount
}

// MarkProcessed flags the record as successfully published.
func (r *Record) MarkProcessed(now time.Time) {
	t := now.UTC()
	r.ProcessedOnUTC = &t
	r.NextAttemptOnUTC = nil
}

// MarkAttemptFailed consumes one attempt and schedules the next one, or
// parks the record permanently when attempts are exhausted.
func (r *Record) MarkAttemptFailed(now time.Time, nextDelay time.Duration, errMsg string) {
	r.AttemptCount++
	r.LastErrorMessage = &errMsg
	if r.IsExhausted() {
		r.NextAttemptOnUTC = nil
		return
	}
	next := now.UTC().Add(nextDelay)
	r.NextAttemptOnUTC = &next
}
