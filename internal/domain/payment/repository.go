package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create creates a new payment
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// Update updates an existing payment. The implementation guards
	// against stale writes: the update only applies when the stored
	// version still matches the one the payment was loaded with.
	Update(ctx context.Context, payment *Payment) error

	// List lists payments with filters
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)

	// ListStale returns payments still pending or processing whose last
	// update is older than the cutoff, for reconciliation.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*Payment, error)

	// AddAuditEvent adds a payment audit trail entry
	AddAuditEvent(ctx context.Context, event *AuditEvent) error

	// GetAuditEvents retrieves the audit trail for a payment
	GetAuditEvents(ctx context.Context, paymentID uuid.UUID) ([]*AuditEvent, error)
}

// ListFilter defines filters for listing payments
type ListFilter struct {
	OrderID   *uuid.UUID
	Status    *Status
	Method    *Method
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// AuditEvent represents an entry in the payment audit trail
type AuditEvent struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}
