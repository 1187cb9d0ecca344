package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Receipt records a single inbound gateway callback delivery. The
// (Gateway, RequestID) pair is unique and is the idempotency boundary
// for duplicate deliveries. Receipts are retained as an audit trail.
type Receipt struct {
	ID            uuid.UUID
	Gateway       string
	RequestID     string
	Payload       string
	IsProcessed   bool
	FailureReason *string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewReceipt creates an unprocessed receipt for a delivery.
func NewReceipt(gateway, requestID, payload string) *Receipt {
	return &Receipt{
		ID:        uuid.New(),
		Gateway:   gateway,
		RequestID: requestID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// MarkProcessed flags the receipt as successfully handled.
func (r *Receipt) MarkProcessed() {
	r.IsProcessed = true
	now := time.Now()
	r.ProcessedAt = &now
	r.FailureReason = nil
}

// MarkFailed records why the delivery could not be applied. The receipt
// stays unprocessed so the failure is visible in the audit trail.
func (r *Receipt) MarkFailed(reason string) {
	r.IsProcessed = false
	now := time.Now()
	r.ProcessedAt = &now
	r.FailureReason = &reason
}
