package gateway

import (
	"context"
	"errors"

	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Invoker wraps gateway calls with bounded retry and a circuit breaker.
// Only transport-level failures are retried; a result the gateway itself
// returned, success or rejection, passes through on the first attempt.
// When every attempt fails at the transport level the caller receives a
// synthetic SYSTEM_ERROR result instead of an error.
type Invoker struct {
	factory *Factory
	cfg     retry.Config
	logger  zerolog.Logger
}

func NewInvoker(factory *Factory, cfg retry.Config, logger zerolog.Logger) *Invoker {
	return &Invoker{factory: factory, cfg: cfg, logger: logger}
}

// ProcessPayment invokes the gateway named by req.Method.
func (i *Invoker) ProcessPayment(ctx context.Context, req Request) (*Result, error) {
	return i.invoke(ctx, req.Method, "process", func(c Client) (*Result, error) {
		return c.ProcessPayment(ctx, req)
	})
}

// VerifyPayment queries the gateway's authoritative state.
func (i *Invoker) VerifyPayment(ctx context.Context, method string, transactionID string) (*Result, error) {
	return i.invoke(ctx, method, "verify", func(c Client) (*Result, error) {
		return c.VerifyPayment(ctx, transactionID)
	})
}

// RefundPayment refunds a completed transaction.
func (i *Invoker) RefundPayment(ctx context.Context, method string, transactionID string, amountCents int64) (*Result, error) {
	return i.invoke(ctx, method, "refund", func(c Client) (*Result, error) {
		return c.RefundPayment(ctx, transactionID, amountCents)
	})
}

func (i *Invoker) invoke(ctx context.Context, method, op string, call func(Client) (*Result, error)) (*Result, error) {
	client, breaker, err := i.factory.Get(payment.Method(method))
	if err != nil {
		return nil, err
	}

	result, err := retry.DoWithResult(ctx, i.cfg, func() (*Result, error) {
		res, callErr := breaker.Execute(func() (*Result, error) {
			return call(client)
		})
		if callErr != nil {
			if errors.Is(callErr, gobreaker.ErrOpenState) || errors.Is(callErr, gobreaker.ErrTooManyRequests) {
				// An open breaker fails every call until its cooldown elapses.
				return nil, retry.Unrecoverable(callErr)
			}
			return nil, callErr
		}
		return res, nil
	}, func(n uint, err error) {
		i.logger.Warn().
			Err(err).
			Str("gateway", method).
			Str("operation", op).
			Uint("attempt", n+1).
			Msg("gateway call failed, retrying")
	})
	if err != nil {
		i.logger.Error().
			Err(err).
			Str("gateway", method).
			Str("operation", op).
			Msg("gateway call exhausted all attempts")
		return SystemErrorResult(err.Error()), nil
	}
	return result, nil
}
