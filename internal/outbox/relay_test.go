package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domainOutbox "github.com/cassiomorais/paycore/internal/domain/outbox"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/infrastructure/observability"
	"github.com/cassiomorais/paycore/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func newTestRelay(repo domainOutbox.Repository, pub Publisher) *Relay {
	return NewRelay(repo, pub, Config{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		BaseDelay:    time.Second,
		CapDelay:     time.Minute,
	}, zerolog.Nop(), testMetrics())
}

// completedRecord builds an outbox record carrying a serialized
// payment.completed event, the way the store writes them.
func completedRecord(t *testing.T) (*domainOutbox.Record, payment.PaymentCompleted) {
	t.Helper()
	p := testutil.NewTestPayment(payment.MethodMockPay, 1000, "USD")
	ev := payment.NewPaymentCompleted(p, "tx-1")
	content, err := json.Marshal(ev)
	require.NoError(t, err)
	return domainOutbox.NewRecord(ev.Type(), content), ev
}

func TestRelay_Tick_PublishesDueRecords(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()
	relay := newTestRelay(repo, pub)

	rec, ev := completedRecord(t)
	require.NoError(t, repo.Insert(context.Background(), rec))

	require.NoError(t, relay.Tick(context.Background(), time.Now()))

	published := pub.Published()
	require.Len(t, published, 1)
	assert.Equal(t, payment.EventTypeCompleted, published[0].EventType)
	// The event id rides along for downstream deduplication.
	assert.Equal(t, ev.EventID.String(), published[0].EventID)

	stored := repo.Records()
	require.Len(t, stored, 1)
	assert.NotNil(t, stored[0].ProcessedOnUTC)
}

func TestRelay_Tick_FailureSchedulesRetry(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()
	pub.PublishFunc = func(ctx context.Context, eventType, eventID string, content []byte) error {
		return errors.New("broker unavailable")
	}
	relay := newTestRelay(repo, pub)

	rec, _ := completedRecord(t)
	require.NoError(t, repo.Insert(context.Background(), rec))

	now := time.Now()
	require.NoError(t, relay.Tick(context.Background(), now))

	stored := repo.Records()
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].ProcessedOnUTC)
	assert.Equal(t, 1, stored[0].AttemptCount)
	require.NotNil(t, stored[0].NextAttemptOnUTC)
	assert.True(t, stored[0].NextAttemptOnUTC.After(now))
	assert.Equal(t, "broker unavailable", *stored[0].LastErrorMessage)
}

func TestRelay_Tick_ScheduledRecordNotReclaimedEarly(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()
	pub.PublishFunc = func(ctx context.Context, eventType, eventID string, content []byte) error {
		return errors.New("broker unavailable")
	}
	relay := newTestRelay(repo, pub)

	rec, _ := completedRecord(t)
	require.NoError(t, repo.Insert(context.Background(), rec))

	now := time.Now()
	require.NoError(t, relay.Tick(context.Background(), now))

	// Before the scheduled next attempt the record stays untouched.
	require.NoError(t, relay.Tick(context.Background(), now.Add(time.Millisecond)))
	assert.Equal(t, 1, repo.Records()[0].AttemptCount)

	// At the scheduled time it is claimed again.
	next := *repo.Records()[0].NextAttemptOnUTC
	require.NoError(t, relay.Tick(context.Background(), next.Add(time.Second)))
	assert.Equal(t, 2, repo.Records()[0].AttemptCount)
}

func TestRelay_Tick_ExhaustedRecordParked(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()
	pub.PublishFunc = func(ctx context.Context, eventType, eventID string, content []byte) error {
		return errors.New("broker unavailable")
	}
	relay := newTestRelay(repo, pub)

	rec, _ := completedRecord(t)
	require.NoError(t, repo.Insert(context.Background(), rec))

	// Burn through every attempt.
	tick := time.Now()
	for i := 0; i < rec.MaxAttemptCount; i++ {
		require.NoError(t, relay.Tick(context.Background(), tick))
		tick = tick.Add(10 * time.Minute)
	}

	stored := repo.Records()[0]
	assert.Equal(t, stored.MaxAttemptCount, stored.AttemptCount)
	assert.Nil(t, stored.NextAttemptOnUTC)
	assert.Nil(t, stored.ProcessedOnUTC)

	count, err := repo.CountPermanentlyFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Parked records are never claimed again.
	require.NoError(t, relay.Tick(context.Background(), tick))
	assert.Equal(t, stored.MaxAttemptCount, repo.Records()[0].AttemptCount)
}

func TestRelay_Tick_UndecodableRecordFails(t *testing.T) {
	repo := testutil.NewMockOutboxRepository()
	pub := testutil.NewMockPublisher()
	relay := newTestRelay(repo, pub)

	rec := domainOutbox.NewRecord("unknown.event", []byte(`{}`))
	require.NoError(t, repo.Insert(context.Background(), rec))

	require.NoError(t, relay.Tick(context.Background(), time.Now()))

	assert.Empty(t, pub.Published())
	assert.Equal(t, 1, repo.Records()[0].AttemptCount)
}

func TestRelay_NextDelay_GrowthAndCap(t *testing.T) {
	relay := NewRelay(testutil.NewMockOutboxRepository(), testutil.NewMockPublisher(), Config{
		BaseDelay: time.Second,
		CapDelay:  time.Minute,
	}, zerolog.Nop(), testMetrics())

	prev := time.Duration(0)
	for attempts := 0; attempts < 4; attempts++ {
		d := relay.NextDelay(attempts)
		assert.Greater(t, d, prev, "delay should grow with attempts")
		prev = d
	}

	// Deep attempt counts hit the cap (plus at most one base of jitter).
	d := relay.NextDelay(20)
	assert.GreaterOrEqual(t, d, time.Minute)
	assert.LessOrEqual(t, d, time.Minute+time.Second)
}
