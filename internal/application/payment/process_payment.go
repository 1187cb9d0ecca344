package payment

import (
	"context"
	"fmt"

	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProcessPaymentUseCase drives a pending payment through its gateway.
type ProcessPaymentUseCase struct {
	store   *Store
	invoker *gateway.Invoker
	logger  zerolog.Logger
}

// NewProcessPaymentUseCase creates a new ProcessPaymentUseCase.
func NewProcessPaymentUseCase(store *Store, invoker *gateway.Invoker, logger zerolog.Logger) *ProcessPaymentUseCase {
	return &ProcessPaymentUseCase{store: store, invoker: invoker, logger: logger}
}

// Execute processes a single payment by ID. A payment past pending is
// left alone: another worker, a webhook or the sweeper got there first.
func (uc *ProcessPaymentUseCase) Execute(ctx context.Context, paymentID uuid.UUID, actor string) error {
	p, err := uc.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}

	if p.Status != payment.StatusPending {
		return nil
	}

	if err := p.MarkAsProcessing(actor); err != nil {
		return err
	}
	if err := uc.store.Save(ctx, p); err != nil {
		return err
	}

	result, err := uc.invoker.ProcessPayment(ctx, gateway.Request{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		AmountCents: p.Amount.ValueCents,
		Currency:    p.Amount.Currency,
		Method:      string(p.Method),
		Description: fmt.Sprintf("order %s", p.OrderID),
	})
	if err != nil {
		// Unknown gateway or other setup failure, not a gateway verdict.
		if ferr := p.MarkAsFailed(gateway.CodeSystemError, err.Error(), "", actor); ferr != nil {
			return ferr
		}
		if serr := uc.store.Save(ctx, p); serr != nil {
			return serr
		}
		return err
	}

	if !result.IsSuccess {
		// Covers both the gateway's explicit rejection and the synthetic
		// SYSTEM_ERROR after transport retries were exhausted.
		if err := p.MarkAsFailed(result.ErrorCode, result.ErrorMessage, result.RawResponse, actor); err != nil {
			return err
		}
		return uc.store.Save(ctx, p)
	}

	if result.RedirectURL != "" {
		// Redirect flow: the customer finishes at the gateway and the
		// webhook (or the sweeper) completes the ledger later.
		if err := p.SetTransactionID(result.TransactionID); err != nil {
			return err
		}
		uc.logger.Info().
			Str("payment_id", p.ID.String()).
			Str("transaction_id", result.TransactionID).
			Msg("payment awaiting gateway callback")
		return uc.store.Save(ctx, p)
	}

	if err := p.Complete(result.TransactionID, result.RawResponse, actor); err != nil {
		return err
	}
	return uc.store.Save(ctx, p)
}
