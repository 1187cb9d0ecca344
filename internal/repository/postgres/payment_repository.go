package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"amount":     "amount",
	"status":     "status",
	"updated_at": "updated_at",
}

const paymentColumns = `id, order_id, amount, currency, method, status,
	        transaction_id, error_code, error_message, refund_reason, refund_transaction_id,
	        raw_response, created_at, updated_at, created_by, updated_by, completed_at, version`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments
		 (id, order_id, amount, currency, method, status,
		  transaction_id, error_code, error_message, refund_reason, refund_transaction_id,
		  raw_response, created_at, updated_at, created_by, updated_by, completed_at, version)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		p.ID, p.OrderID, centsToNumericString(p.Amount.ValueCents), p.Amount.Currency,
		string(p.Method), string(p.Status),
		p.TransactionID, p.ErrorCode, p.ErrorMessage, p.RefundReason, p.RefundTransactionID,
		p.RawResponse, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy, p.CompletedAt, p.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// Update updates an existing payment, guarded by the version the payment
// was loaded with. A stale write loses the version check and fails with
// ErrOptimisticLockFailed instead of silently overwriting a newer state.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		  status=$1, transaction_id=$2, error_code=$3, error_message=$4,
		  refund_reason=$5, refund_transaction_id=$6, raw_response=$7,
		  updated_at=$8, updated_by=$9, completed_at=$10, version=version+1
		 WHERE id=$11 AND version=$12`,
		string(p.Status), p.TransactionID, p.ErrorCode, p.ErrorMessage,
		p.RefundReason, p.RefundTransactionID, p.RawResponse,
		p.UpdatedAt, p.UpdatedBy, p.CompletedAt, p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id=$1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check payment exists: %w", err)
		}
		if !exists {
			return domainErrors.ErrPaymentNotFound
		}
		return domainErrors.ErrOptimisticLockFailed
	}
	p.Version++
	return nil
}

// List lists payments with optional filters.
func (r *PaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.OrderID != nil {
		query += fmt.Sprintf(" AND order_id = $%d", argIdx)
		args = append(args, *f.OrderID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Method != nil {
		query += fmt.Sprintf(" AND method = $%d", argIdx)
		args = append(args, string(*f.Method))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	return r.collectPayments(rows)
}

// ListStale returns pending/processing payments not updated since olderThan.
func (r *PaymentRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status IN ('pending', 'processing') AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	defer rows.Close()

	return r.collectPayments(rows)
}

// AddAuditEvent inserts a payment audit trail entry.
func (r *PaymentRepository) AddAuditEvent(ctx context.Context, event *payment.AuditEvent) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, payment_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		event.ID, event.PaymentID, event.EventType, data,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// GetAuditEvents retrieves the audit trail for a payment.
func (r *PaymentRepository) GetAuditEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.AuditEvent, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, payment_id, event_type, event_data, created_at
		 FROM payment_events WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer rows.Close()

	var events []*payment.AuditEvent
	for rows.Next() {
		e := &payment.AuditEvent{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- scanning helpers ---

func (r *PaymentRepository) collectPayments(rows pgx.Rows) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		amountStr string
		method    string
		status    string
	)
	err := s.Scan(
		&p.ID, &p.OrderID, &amountStr, &p.Amount.Currency, &method, &status,
		&p.TransactionID, &p.ErrorCode, &p.ErrorMessage, &p.RefundReason, &p.RefundTransactionID,
		&p.RawResponse, &p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy, &p.CompletedAt, &p.Version,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	cents, err := numericStringToCents(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount.ValueCents = cents
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	return p, nil
}
