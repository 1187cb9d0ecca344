package payment

import (
	"fmt"
	"time"

	"github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Method represents the external payment gateway used for a payment
type Method string

const (
	MethodMockPay   Method = "mockpay"
	MethodStripePay Method = "stripepay"
)

// SupportedMethods lists the gateways accepted at creation time.
var SupportedMethods = map[Method]bool{
	MethodMockPay:   true,
	MethodStripePay: true,
}

// Payment is the payment ledger aggregate. Mutations collect the
// integration events they emit; callers drain them with PullEvents and
// persist them in the same transaction as the state change.
type Payment struct {
	ID                  uuid.UUID
	OrderID             uuid.UUID
	Amount              Amount
	Method              Method
	Status              Status
	TransactionID       *string
	ErrorCode           *string
	ErrorMessage        *string
	RefundReason        *string
	RefundTransactionID *string
	RawResponse         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CreatedBy           string
	UpdatedBy           string
	CompletedAt         *time.Time

	// Version guards concurrent mutators: updates only apply when the
	// stored version still matches the one the payment was loaded with.
	Version int64

	events []Event
}

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// New creates a new payment in the pending state.
func New(orderID uuid.UUID, amount Amount, method Method, actor string) (*Payment, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !SupportedMethods[method] {
		return nil, errors.NewDomainError("invalid_method", "unsupported payment method "+string(method), errors.ErrInvalidMethod)
	}
	if orderID == uuid.Nil {
		return nil, errors.NewValidationError("order_id", "cannot be empty")
	}

	now := time.Now()
	return &Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		UpdatedBy: actor,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusProcessing,
			StatusCompleted, // callback arrived before the processing mark
			StatusFailed,
		},
		StatusProcessing: {
			StatusCompleted,
			StatusFailed,
		},
		StatusCompleted: {
			StatusRefunded,
		},
		StatusFailed:   {}, // Terminal state
		StatusRefunded: {}, // Terminal state
	}

	allowedTransitions, exists := transitions[p.Status]
	if !exists {
		return false
	}

	for _, allowed := range allowedTransitions {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the payment to a new status
func (p *Payment) TransitionTo(newStatus Status, actor string) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	p.Status = newStatus
	p.UpdatedAt = time.Now()
	p.UpdatedBy = actor

	if newStatus == StatusCompleted || newStatus == StatusFailed {
		now := time.Now()
		p.CompletedAt = &now
	}

	return nil
}

// MarkAsProcessing transitions the payment to processing status.
func (p *Payment) MarkAsProcessing(actor string) error {
	if p.Status != StatusPending {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot start processing from "+string(p.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	return p.TransitionTo(StatusProcessing, actor)
}

// Complete transitions the payment to completed and records the gateway
// transaction reference. Completing an already-completed payment is a
// no-op: the transaction id is immutable and no second event is emitted.
func (p *Payment) Complete(transactionID string, rawResponse string, actor string) error {
	if p.Status == StatusCompleted {
		return nil
	}
	if err := p.TransitionTo(StatusCompleted, actor); err != nil {
		return err
	}
	p.TransactionID = &transactionID
	if rawResponse != "" {
		p.RawResponse = &rawResponse
	}
	p.record(NewPaymentCompleted(p, transactionID))
	return nil
}

// MarkAsFailed transitions the payment to failed with the gateway's
// error code and message.
func (p *Payment) MarkAsFailed(errorCode, errorMessage, rawResponse, actor string) error {
	if err := p.TransitionTo(StatusFailed, actor); err != nil {
		return err
	}
	p.ErrorCode = &errorCode
	p.ErrorMessage = &errorMessage
	if rawResponse != "" {
		p.RawResponse = &rawResponse
	}
	p.record(NewPaymentFailed(p, errorCode, errorMessage))
	return nil
}

// Refund transitions a completed payment to refunded.
func (p *Payment) Refund(reason, refundTransactionID, actor string) error {
	if p.Status != StatusCompleted {
		return errors.NewDomainError(
			"refund_not_completed",
			"cannot refund a payment in status "+string(p.Status),
			errors.ErrRefundNotCompleted,
		)
	}
	if err := p.TransitionTo(StatusRefunded, actor); err != nil {
		return err
	}
	p.RefundReason = &reason
	p.RefundTransactionID = &refundTransactionID
	p.record(NewPaymentRefunded(p, reason, refundTransactionID))
	return nil
}

// SetTransactionID records the gateway reference while the payment stays
// processing. Used by redirect-based flows awaiting the callback.
func (p *Payment) SetTransactionID(transactionID string) error {
	if p.Status != StatusProcessing {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot set transaction id in status "+string(p.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	p.TransactionID = &transactionID
	p.UpdatedAt = time.Now()
	return nil
}

// IsTerminal checks if the payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusFailed || p.Status == StatusRefunded
}

// record appends an emitted event to the aggregate's pending list.
func (p *Payment) record(e Event) {
	p.events = append(p.events, e)
}

// PullEvents drains and returns the events emitted since the last drain.
func (p *Payment) PullEvents() []Event {
	events := p.events
	p.events = nil
	return events
}

func validateAmount(amount Amount) error {
	if amount.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	// Simple currency validation (3-letter code)
	if len(amount.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}
