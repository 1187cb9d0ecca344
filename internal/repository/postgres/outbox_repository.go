package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/paycore/internal/domain/outbox"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository implements outbox.Repository using PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *OutboxRepository) Insert(ctx context.Context, record *outbox.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO outbox_messages
		 (id, event_type, content, occurred_on_utc, processed_on_utc, claimed_on_utc,
		  attempt_count, max_attempt_count, next_attempt_on_utc, last_error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.EventType, record.Content, record.OccurredOnUTC,
		record.ProcessedOnUTC, record.ClaimedOnUTC,
		record.AttemptCount, record.MaxAttemptCount, record.NextAttemptOnUTC, record.LastErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// ClaimDue claims a batch of due records with a single conditional update.
// The sub-select takes row locks with SKIP LOCKED so concurrent relay
// instances partition the due set instead of double-claiming.
func (r *OutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`UPDATE outbox_messages SET claimed_on_utc = $1
		 WHERE id IN (
		   SELECT id FROM outbox_messages
		   WHERE processed_on_utc IS NULL
		     AND (next_attempt_on_utc IS NULL OR next_attempt_on_utc <= $1)
		     AND attempt_count < max_attempt_count
		   ORDER BY occurred_on_utc ASC
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, event_type, content, occurred_on_utc, processed_on_utc, claimed_on_utc,
		           attempt_count, max_attempt_count, next_attempt_on_utc, last_error_message`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox records: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		rec := &outbox.Record{}
		if err := rows.Scan(
			&rec.ID, &rec.EventType, &rec.Content, &rec.OccurredOnUTC, &rec.ProcessedOnUTC, &rec.ClaimedOnUTC,
			&rec.AttemptCount, &rec.MaxAttemptCount, &rec.NextAttemptOnUTC, &rec.LastErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, record *outbox.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox_messages SET processed_on_utc = $1, next_attempt_on_utc = NULL
		 WHERE id = $2`,
		record.ProcessedOnUTC, record.ID,
	)
	if err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, record *outbox.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox_messages SET attempt_count = $1, next_attempt_on_utc = $2, last_error_message = $3
		 WHERE id = $4`,
		record.AttemptCount, record.NextAttemptOnUTC, record.LastErrorMessage, record.ID,
	)
	if err != nil {
		return fmt.Errorf("mark outbox attempt failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CountPermanentlyFailed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_messages
		 WHERE processed_on_utc IS NULL AND attempt_count >= max_attempt_count`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count permanently failed outbox records: %w", err)
	}
	return count, nil
}

func (r *OutboxRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_messages
		 WHERE processed_on_utc IS NULL AND attempt_count < max_attempt_count`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed outbox records: %w", err)
	}
	return count, nil
}

func (r *OutboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM outbox_messages WHERE processed_on_utc IS NOT NULL AND processed_on_utc < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox records: %w", err)
	}
	return tag.RowsAffected(), nil
}
