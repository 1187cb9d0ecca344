package payment

import (
	"time"

	"github.com/google/uuid"
)

// Event type names as stored in the outbox and published downstream.
const (
	EventTypeCompleted = "payment.completed"
	EventTypeFailed    = "payment.failed"
	EventTypeRefunded  = "payment.refunded"
)

// Event is an integration event emitted by a ledger transition. Consumers
// receive events at-least-once and must deduplicate by EventID if they
// need exactly-once effect.
type Event interface {
	Type() string
	ID() uuid.UUID
}

// EventBase carries the fields shared by every payment event.
type EventBase struct {
	EventID      uuid.UUID `json:"event_id"`
	PaymentID    uuid.UUID `json:"payment_id"`
	OrderID      uuid.UUID `json:"order_id"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
	Method       string    `json:"method"`
	OccurredOnUT time.Time `json:"occurred_on_utc"`
}

func (b EventBase) ID() uuid.UUID { return b.EventID }

func newEventBase(p *Payment) EventBase {
	return EventBase{
		EventID:      uuid.New(),
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		AmountCents:  p.Amount.ValueCents,
		Currency:     p.Amount.Currency,
		Method:       string(p.Method),
		OccurredOnUT: time.Now().UTC(),
	}
}

// PaymentCompleted is emitted when a payment reaches the completed state.
type PaymentCompleted struct {
	EventBase
	TransactionID string `json:"transaction_id"`
}

func (PaymentCompleted) Type() string { return EventTypeCompleted }

func NewPaymentCompleted(p *Payment, transactionID string) PaymentCompleted {
	return PaymentCompleted{EventBase: newEventBase(p), TransactionID: transactionID}
}

// PaymentFailed is emitted when a payment reaches the failed state.
type PaymentFailed struct {
	EventBase
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (PaymentFailed) Type() string { return EventTypeFailed }

func NewPaymentFailed(p *Payment, errorCode, errorMessage string) PaymentFailed {
	return PaymentFailed{EventBase: newEventBase(p), ErrorCode: errorCode, ErrorMessage: errorMessage}
}

// PaymentRefunded is emitted when a completed payment is refunded.
type PaymentRefunded struct {
	EventBase
	Reason              string `json:"reason"`
	RefundTransactionID string `json:"refund_transaction_id"`
}

func (PaymentRefunded) Type() string { return EventTypeRefunded }

func NewPaymentRefunded(p *Payment, reason, refundTransactionID string) PaymentRefunded {
	return PaymentRefunded{EventBase: newEventBase(p), Reason: reason, RefundTransactionID: refundTransactionID}
}
