package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/paycore/internal/domain/outbox"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/google/uuid"
)

// Store persists ledger mutations together with the events they emitted.
// The outbox rows and the audit trail commit in the same transaction as
// the state change: the event row exists iff the transition committed.
type Store struct {
	payments  payment.Repository
	outbox    outbox.Repository
	txManager TransactionManager
}

func NewStore(payments payment.Repository, outboxRepo outbox.Repository, txManager TransactionManager) *Store {
	return &Store{payments: payments, outbox: outboxRepo, txManager: txManager}
}

// SaveNew persists a freshly created payment.
func (s *Store) SaveNew(ctx context.Context, p *payment.Payment) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, p); err != nil {
			return err
		}
		return s.writeEvents(txCtx, p)
	})
}

// Save persists a mutated payment plus any events the mutation emitted.
func (s *Store) Save(ctx context.Context, p *payment.Payment) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.payments.Update(txCtx, p); err != nil {
			return err
		}
		return s.writeEvents(txCtx, p)
	})
}

func (s *Store) writeEvents(ctx context.Context, p *payment.Payment) error {
	for _, ev := range p.PullEvents() {
		content, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.Type(), err)
		}
		if err := s.outbox.Insert(ctx, outbox.NewRecord(ev.Type(), content)); err != nil {
			return err
		}

		var data map[string]any
		if err := json.Unmarshal(content, &data); err != nil {
			return fmt.Errorf("decode event %s: %w", ev.Type(), err)
		}
		if err := s.payments.AddAuditEvent(ctx, &payment.AuditEvent{
			ID:        uuid.New(),
			PaymentID: p.ID,
			EventType: ev.Type(),
			EventData: data,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Payments exposes the underlying repository for reads.
func (s *Store) Payments() payment.Repository {
	return s.payments
}
