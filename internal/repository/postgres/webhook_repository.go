package postgres

import (
	"context"
	"fmt"

	"github.com/cassiomorais/paycore/internal/domain/webhook"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepository implements webhook.Repository using PostgreSQL. The
// unique index on (gateway, request_id) is the idempotency boundary for
// concurrent duplicate deliveries.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func (r *WebhookRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// TryInsert inserts the receipt unless the (gateway, request_id) key
// already exists. Losing the race is not an error: the existing receipt
// is returned so the caller can decide whether to short-circuit.
func (r *WebhookRepository) TryInsert(ctx context.Context, receipt *webhook.Receipt) (*webhook.Receipt, bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_receipts (id, gateway, request_id, payload, is_processed, failure_reason, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (gateway, request_id) DO NOTHING`,
		receipt.ID, receipt.Gateway, receipt.RequestID, receipt.Payload,
		receipt.IsProcessed, receipt.FailureReason, receipt.CreatedAt, receipt.ProcessedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert webhook receipt: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return receipt, true, nil
	}

	existing, err := r.Get(ctx, receipt.Gateway, receipt.RequestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *WebhookRepository) Get(ctx context.Context, gateway, requestID string) (*webhook.Receipt, error) {
	rec := &webhook.Receipt{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, gateway, request_id, payload, is_processed, failure_reason, created_at, processed_at
		 FROM webhook_receipts WHERE gateway = $1 AND request_id = $2`,
		gateway, requestID,
	).Scan(&rec.ID, &rec.Gateway, &rec.RequestID, &rec.Payload, &rec.IsProcessed, &rec.FailureReason, &rec.CreatedAt, &rec.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook receipt: %w", err)
	}
	return rec, nil
}

func (r *WebhookRepository) Update(ctx context.Context, receipt *webhook.Receipt) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE webhook_receipts SET is_processed = $1, failure_reason = $2, processed_at = $3
		 WHERE id = $4`,
		receipt.IsProcessed, receipt.FailureReason, receipt.ProcessedAt, receipt.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook receipt: %w", err)
	}
	return nil
}
