package gateway

import (
	"context"

	"github.com/google/uuid"
)

// Synthetic error codes assigned by this service, never by a gateway.
const (
	CodeSystemError     = "SYSTEM_ERROR"
	CodeReconcileFailed = "RECONCILE_FAILED"
)

// Request carries everything a gateway needs to process a payment.
type Request struct {
	PaymentID   uuid.UUID
	OrderID     uuid.UUID
	AmountCents int64
	Currency    string
	Method      string
	Description string
	ReturnURL   string
	CancelURL   string
	Metadata    map[string]any
}

// Result is the uniform outcome of any gateway call. A returned Go error
// means the call itself failed (timeout, connection reset) and may be
// retried; IsSuccess=false with an ErrorCode is the gateway's considered
// rejection and must not be.
type Result struct {
	IsSuccess     bool
	TransactionID string
	RedirectURL   string
	ErrorCode     string
	ErrorMessage  string
	RawResponse   string
}

// Client is the contract every external payment gateway implements.
type Client interface {
	// Name returns the gateway name.
	Name() string
	// ProcessPayment initiates a payment through the gateway.
	ProcessPayment(ctx context.Context, req Request) (*Result, error)
	// VerifyPayment queries the gateway's authoritative state for a transaction.
	VerifyPayment(ctx context.Context, transactionID string) (*Result, error)
	// RefundPayment refunds a completed transaction.
	RefundPayment(ctx context.Context, transactionID string, amountCents int64) (*Result, error)
}

// SystemErrorResult builds the synthetic failure surfaced when every
// transport-level attempt against a gateway has been exhausted.
func SystemErrorResult(message string) *Result {
	return &Result{
		IsSuccess:    false,
		ErrorCode:    CodeSystemError,
		ErrorMessage: message,
	}
}
