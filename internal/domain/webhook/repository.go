package webhook

import (
	"context"
)

// Repository defines the interface for webhook receipt persistence
type Repository interface {
	// TryInsert attempts to insert the receipt. When a receipt with the
	// same (gateway, request_id) already exists the insert is a no-op
	// and the existing receipt is returned with inserted=false.
	TryInsert(ctx context.Context, receipt *Receipt) (existing *Receipt, inserted bool, err error)

	// Get retrieves a receipt by its idempotency key
	Get(ctx context.Context, gateway, requestID string) (*Receipt, error)

	// Update persists the processed/failed outcome of a receipt
	Update(ctx context.Context, receipt *Receipt) error
}
