package gateway

import (
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
)

// Factory holds the registered gateway clients, one circuit breaker each.
type Factory struct {
	clients  map[string]Client
	breakers map[string]*gobreaker.CircuitBreaker[*Result]
}

func NewFactory(clients ...Client) *Factory {
	f := &Factory{
		clients:  make(map[string]Client),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Result]),
	}

	if len(clients) == 0 {
		f.Register(NewMockClient(string(payment.MethodMockPay),
			WithLatency(200*time.Millisecond),
			WithRedirectBase("https://pay.mockpay.example"),
		))
		f.Register(NewMockClient(string(payment.MethodStripePay),
			WithLatency(300*time.Millisecond),
		))
	} else {
		for _, c := range clients {
			f.Register(c)
		}
	}

	return f
}

func (f *Factory) Register(c Client) {
	f.clients[c.Name()] = c
	f.breakers[c.Name()] = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        c.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

func (f *Factory) Get(method payment.Method) (Client, *gobreaker.CircuitBreaker[*Result], error) {
	c, ok := f.clients[string(method)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown gateway %q: %w", method, domainErrors.ErrGatewayNotFound)
	}
	breaker := f.breakers[string(method)]
	return c, breaker, nil
}
