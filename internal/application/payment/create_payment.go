package payment

import (
	"context"

	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/google/uuid"
)

// CreatePaymentRequest holds the input for creating a payment.
type CreatePaymentRequest struct {
	OrderID     uuid.UUID
	AmountCents int64
	Currency    string
	Method      payment.Method
	Actor       string
}

// CreatePaymentUseCase creates a pending payment ready for processing.
type CreatePaymentUseCase struct {
	store *Store
}

// NewCreatePaymentUseCase creates a new CreatePaymentUseCase.
func NewCreatePaymentUseCase(store *Store) *CreatePaymentUseCase {
	return &CreatePaymentUseCase{store: store}
}

// Execute validates the request and persists a new pending payment.
func (uc *CreatePaymentUseCase) Execute(ctx context.Context, req CreatePaymentRequest) (*payment.Payment, error) {
	p, err := payment.New(
		req.OrderID,
		payment.Amount{ValueCents: req.AmountCents, Currency: req.Currency},
		req.Method,
		req.Actor,
	)
	if err != nil {
		return nil, err
	}

	if err := uc.store.SaveNew(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
