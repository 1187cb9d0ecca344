package payment

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/google/uuid"
)

// RefundPaymentUseCase refunds a completed payment through its gateway.
type RefundPaymentUseCase struct {
	store   *Store
	invoker *gateway.Invoker
}

// NewRefundPaymentUseCase creates a new RefundPaymentUseCase.
func NewRefundPaymentUseCase(store *Store, invoker *gateway.Invoker) *RefundPaymentUseCase {
	return &RefundPaymentUseCase{store: store, invoker: invoker}
}

// Execute refunds the payment. Precondition failures come back as domain
// errors so an admin caller can react instead of crashing.
func (uc *RefundPaymentUseCase) Execute(ctx context.Context, paymentID uuid.UUID, reason, actor string) (*payment.Payment, error) {
	p, err := uc.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	if p.Status != payment.StatusCompleted {
		return nil, domainErrors.NewDomainError(
			"refund_not_completed",
			"cannot refund a payment in status "+string(p.Status),
			domainErrors.ErrRefundNotCompleted,
		)
	}
	if p.TransactionID == nil {
		return nil, domainErrors.NewDomainError(
			"refund_no_transaction",
			"completed payment has no gateway transaction reference",
			nil,
		)
	}

	result, err := uc.invoker.RefundPayment(ctx, string(p.Method), *p.TransactionID, p.Amount.ValueCents)
	if err != nil {
		return nil, err
	}
	if !result.IsSuccess {
		return nil, domainErrors.NewDomainError(
			result.ErrorCode,
			"gateway refused the refund: "+result.ErrorMessage,
			domainErrors.ErrGatewayRejected,
		)
	}

	if err := p.Refund(reason, result.TransactionID, actor); err != nil {
		return nil, err
	}
	if err := uc.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
