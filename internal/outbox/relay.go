package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/cassiomorais/paycore/internal/domain/outbox"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Publisher is the downstream bus the relay publishes events to.
// Delivery is at-least-once: consumers deduplicate by event id.
type Publisher interface {
	Publish(ctx context.Context, eventType, eventID string, content []byte) error
}

// Config holds the relay's polling and backoff knobs.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	BaseDelay    time.Duration // first retry delay, doubled per attempt
	CapDelay     time.Duration // upper bound on a single retry delay
}

// Relay polls the outbox for due records and publishes them. Multiple
// relay instances may run concurrently; the claim query partitions the
// due set between them.
type Relay struct {
	repo      outbox.Repository
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewRelay(repo outbox.Repository, publisher Publisher, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.CapDelay <= 0 {
		cfg.CapDelay = 5 * time.Minute
	}
	return &Relay{repo: repo, publisher: publisher, cfg: cfg, logger: logger, metrics: metrics}
}

// Run polls until ctx is cancelled. One failing record never stops the loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := r.Tick(ctx, time.Now()); err != nil {
			r.logger.Error().Err(err).Msg("outbox relay tick failed")
		}
	}
}

// Tick claims one batch of due records and publishes them.
func (r *Relay) Tick(ctx context.Context, now time.Time) error {
	records, err := r.repo.ClaimDue(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("claim outbox batch: %w", err)
	}

	for _, rec := range records {
		if err := r.publishRecord(ctx, rec); err != nil {
			r.recordFailure(ctx, rec, now, err)
			continue
		}

		rec.MarkProcessed(time.Now())
		if err := r.repo.MarkProcessed(ctx, rec); err != nil {
			// The publish went out but the mark did not commit; the next
			// cycle redelivers. At-least-once, consumers deduplicate.
			r.logger.Error().Err(err).
				Str("outbox_id", rec.ID.String()).
				Msg("published but failed to mark outbox record processed")
			continue
		}
		r.metrics.OutboxPublished.WithLabelValues(rec.EventType).Inc()
	}
	return nil
}

func (r *Relay) publishRecord(ctx context.Context, rec *outbox.Record) error {
	eventID, err := decodeEventID(rec.EventType, rec.Content)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, rec.EventType, eventID, rec.Content)
}

func (r *Relay) recordFailure(ctx context.Context, rec *outbox.Record, now time.Time, pubErr error) {
	rec.MarkAttemptFailed(now, r.NextDelay(rec.AttemptCount), pubErr.Error())
	if err := r.repo.MarkAttemptFailed(ctx, rec); err != nil {
		r.logger.Error().Err(err).
			Str("outbox_id", rec.ID.String()).
			Msg("failed to persist outbox attempt failure")
		return
	}

	if rec.IsExhausted() {
		// Parked permanently: excluded from future claims, needs an operator.
		r.metrics.OutboxPermanentlyFailed.WithLabelValues(rec.EventType).Inc()
		r.logger.Error().Err(pubErr).
			Str("outbox_id", rec.ID.String()).
			Str("event_type", rec.EventType).
			Int("attempts", rec.AttemptCount).
			Msg("outbox record permanently failed")
		return
	}

	r.metrics.OutboxPublishFailures.WithLabelValues(rec.EventType).Inc()
	r.logger.Warn().Err(pubErr).
		Str("outbox_id", rec.ID.String()).
		Int("attempt", rec.AttemptCount).
		Time("next_attempt", *rec.NextAttemptOnUTC).
		Msg("outbox publish failed, scheduled retry")
}

// NextDelay computes the backoff before attempt attemptsSoFar+1:
// base doubled per attempt, capped, plus up to one base of jitter.
func (r *Relay) NextDelay(attemptsSoFar int) time.Duration {
	delay := r.cfg.BaseDelay << uint(attemptsSoFar+1)
	if delay > r.cfg.CapDelay || delay <= 0 {
		delay = r.cfg.CapDelay
	}
	jitter := time.Duration(rand.Int63n(int64(r.cfg.BaseDelay)))
	return delay + jitter
}

// decodeEventID deserializes the record content by event type and returns
// the embedded event id used for downstream deduplication.
func decodeEventID(eventType string, content []byte) (string, error) {
	var ev payment.Event
	switch eventType {
	case payment.EventTypeCompleted:
		var e payment.PaymentCompleted
		if err := json.Unmarshal(content, &e); err != nil {
			return "", fmt.Errorf("decode %s: %w", eventType, err)
		}
		ev = e
	case payment.EventTypeFailed:
		var e payment.PaymentFailed
		if err := json.Unmarshal(content, &e); err != nil {
			return "", fmt.Errorf("decode %s: %w", eventType, err)
		}
		ev = e
	case payment.EventTypeRefunded:
		var e payment.PaymentRefunded
		if err := json.Unmarshal(content, &e); err != nil {
			return "", fmt.Errorf("decode %s: %w", eventType, err)
		}
		ev = e
	default:
		return "", fmt.Errorf("unknown outbox event type %q", eventType)
	}
	return ev.ID().String(), nil
}
