package testutil

import (
	"time"

	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/google/uuid"
)

func NewTestPayment(method payment.Method, amountCents int64, currency string) *payment.Payment {
	now := time.Now()
	return &payment.Payment{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		Amount:    payment.Amount{ValueCents: amountCents, Currency: currency},
		Method:    method,
		Status:    payment.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: "test",
		UpdatedBy: "test",
	}
}

func NewProcessingPayment(method payment.Method, amountCents int64, transactionID string) *payment.Payment {
	p := NewTestPayment(method, amountCents, "USD")
	p.Status = payment.StatusProcessing
	if transactionID != "" {
		p.TransactionID = &transactionID
	}
	return p
}

func NewCompletedPayment(method payment.Method, amountCents int64, transactionID string) *payment.Payment {
	p := NewTestPayment(method, amountCents, "USD")
	p.Status = payment.StatusCompleted
	p.TransactionID = &transactionID
	completedAt := time.Now()
	p.CompletedAt = &completedAt
	return p
}

// StalePayment backdates the payment's last update so reconciliation
// picks it up.
func StalePayment(p *payment.Payment, age time.Duration) *payment.Payment {
	p.UpdatedAt = time.Now().Add(-age)
	return p
}

func StrPtr(s string) *string {
	return &s
}
