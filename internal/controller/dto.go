package controller

import (
	"time"

	"github.com/cassiomorais/paycore/internal/domain/payment"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, string for IDs,
// validation tags). Controllers convert them before calling use cases.

// CreatePaymentRequest holds the input for creating a payment.
type CreatePaymentRequest struct {
	OrderID  string  `json:"order_id" validate:"required,uuid"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"required,len=3"`
	Method   string  `json:"method" validate:"required,oneof=mockpay stripepay"`
}

// RefundPaymentRequest holds the input for refunding a payment.
type RefundPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID                  string     `json:"id"`
	OrderID             string     `json:"order_id"`
	Amount              float64    `json:"amount"`
	Currency            string     `json:"currency"`
	Method              string     `json:"method"`
	Status              string     `json:"status"`
	TransactionID       *string    `json:"transaction_id,omitempty"`
	ErrorCode           *string    `json:"error_code,omitempty"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	RefundReason        *string    `json:"refund_reason,omitempty"`
	RefundTransactionID *string    `json:"refund_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// WebhookAckResponse is the structured body the webhook endpoint returns.
type WebhookAckResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// FromPayment converts a payment aggregate to its API representation.
func FromPayment(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                  p.ID.String(),
		OrderID:             p.OrderID.String(),
		Amount:              centsToFloat(p.Amount.ValueCents),
		Currency:            p.Amount.Currency,
		Method:              string(p.Method),
		Status:              string(p.Status),
		TransactionID:       p.TransactionID,
		ErrorCode:           p.ErrorCode,
		ErrorMessage:        p.ErrorMessage,
		RefundReason:        p.RefundReason,
		RefundTransactionID: p.RefundTransactionID,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		CompletedAt:         p.CompletedAt,
	}
}

func centsToFloat(cents int64) float64 {
	return float64(cents) / 100
}

func floatToCents(f float64) int64 {
	return int64(f*100 + 0.5)
}
