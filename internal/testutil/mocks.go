package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paycore/internal/domain/errors"
	"github.com/cassiomorais/paycore/internal/domain/outbox"
	"github.com/cassiomorais/paycore/internal/domain/payment"
	"github.com/cassiomorais/paycore/internal/domain/webhook"
	"github.com/cassiomorais/paycore/internal/gateway"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory implementation of
// payment.Repository. It enforces the same version check the postgres
// repository does, so concurrency tests see real lock conflicts.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	audit    map[uuid.UUID][]*payment.AuditEvent

	CreateFunc        func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	UpdateFunc        func(ctx context.Context, p *payment.Payment) error
	ListFunc          func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
	ListStaleFunc     func(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error)
	AddAuditEventFunc func(ctx context.Context, event *payment.AuditEvent) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		audit:    make(map[uuid.UUID][]*payment.AuditEvent),
	}
}

// AddPayment pre-populates the mock with a payment.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
}

// StoredPayment returns the stored payment (test helper, no context needed).
func (m *MockPaymentRepository) StoredPayment(id uuid.UUID) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[p.ID]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if stored.Version != p.Version {
		return domainErrors.ErrOptimisticLockFailed
	}
	cp := *p
	cp.Version++
	m.payments[p.ID] = &cp
	p.Version++
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*payment.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		if filter.OrderID != nil && p.OrderID != *filter.OrderID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Method != nil && p.Method != *filter.Method {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockPaymentRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, olderThan, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*payment.Payment, 0)
	for _, p := range m.payments {
		if p.Status != payment.StatusPending && p.Status != payment.StatusProcessing {
			continue
		}
		if !p.UpdatedAt.Before(olderThan) {
			continue
		}
		cp := *p
		result = append(result, &cp)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockPaymentRepository) AddAuditEvent(ctx context.Context, event *payment.AuditEvent) error {
	if m.AddAuditEventFunc != nil {
		return m.AddAuditEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit[event.PaymentID] = append(m.audit[event.PaymentID], event)
	return nil
}

func (m *MockPaymentRepository) GetAuditEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audit[paymentID], nil
}

// --- Webhook Receipt Repository Mock ---

// MockWebhookRepository is an in-memory implementation of webhook.Repository.
type MockWebhookRepository struct {
	mu       sync.Mutex
	receipts map[string]*webhook.Receipt

	TryInsertFunc func(ctx context.Context, receipt *webhook.Receipt) (*webhook.Receipt, bool, error)
	UpdateFunc    func(ctx context.Context, receipt *webhook.Receipt) error
}

func NewMockWebhookRepository() *MockWebhookRepository {
	return &MockWebhookRepository{receipts: make(map[string]*webhook.Receipt)}
}

func receiptKey(gateway, requestID string) string {
	return gateway + "|" + requestID
}

func (m *MockWebhookRepository) TryInsert(ctx context.Context, receipt *webhook.Receipt) (*webhook.Receipt, bool, error) {
	if m.TryInsertFunc != nil {
		return m.TryInsertFunc(ctx, receipt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := receiptKey(receipt.Gateway, receipt.RequestID)
	if existing, ok := m.receipts[key]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *receipt
	m.receipts[key] = &cp
	return receipt, true, nil
}

func (m *MockWebhookRepository) Get(ctx context.Context, gateway, requestID string) (*webhook.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[receiptKey(gateway, requestID)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockWebhookRepository) Update(ctx context.Context, receipt *webhook.Receipt) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, receipt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *receipt
	m.receipts[receiptKey(receipt.Gateway, receipt.RequestID)] = &cp
	return nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs the transactional function directly.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is an in-memory implementation of outbox.Repository
// with the same claim semantics as the postgres one.
type MockOutboxRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*outbox.Record

	InsertFunc            func(ctx context.Context, record *outbox.Record) error
	ClaimDueFunc          func(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error)
	MarkProcessedFunc     func(ctx context.Context, record *outbox.Record) error
	MarkAttemptFailedFunc func(ctx context.Context, record *outbox.Record) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{records: make(map[uuid.UUID]*outbox.Record)}
}

// Records returns all stored records ordered by occurrence time.
func (m *MockOutboxRepository) Records() []*outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*outbox.Record, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredOnUTC.Before(result[j].OccurredOnUTC)
	})
	return result
}

func (m *MockOutboxRepository) Insert(ctx context.Context, record *outbox.Record) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *MockOutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	if m.ClaimDueFunc != nil {
		return m.ClaimDueFunc(ctx, now, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	due := make([]*outbox.Record, 0)
	for _, rec := range m.records {
		if rec.ProcessedOnUTC != nil {
			continue
		}
		if rec.AttemptCount >= rec.MaxAttemptCount {
			continue
		}
		if rec.NextAttemptOnUTC != nil && rec.NextAttemptOnUTC.After(now) {
			continue
		}
		due = append(due, rec)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].OccurredOnUTC.Before(due[j].OccurredOnUTC)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]*outbox.Record, 0, len(due))
	for _, rec := range due {
		t := now.UTC()
		rec.ClaimedOnUTC = &t
		cp := *rec
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, record *outbox.Record) error {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *MockOutboxRepository) MarkAttemptFailed(ctx context.Context, record *outbox.Record) error {
	if m.MarkAttemptFailedFunc != nil {
		return m.MarkAttemptFailedFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *MockOutboxRepository) CountPermanentlyFailed(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, rec := range m.records {
		if rec.ProcessedOnUTC == nil && rec.AttemptCount >= rec.MaxAttemptCount {
			count++
		}
	}
	return count, nil
}

func (m *MockOutboxRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, rec := range m.records {
		if rec.ProcessedOnUTC == nil && rec.AttemptCount < rec.MaxAttemptCount {
			count++
		}
	}
	return count, nil
}

func (m *MockOutboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, rec := range m.records {
		if rec.ProcessedOnUTC != nil && rec.ProcessedOnUTC.Before(cutoff) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Publisher Mock ---

// PublishedEvent is one call captured by MockPublisher.
type PublishedEvent struct {
	EventType string
	EventID   string
	Content   []byte
}

// MockPublisher captures published events in memory.
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent

	PublishFunc func(ctx context.Context, eventType, eventID string, content []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, eventType, eventID string, content []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, eventType, eventID, content)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{EventType: eventType, EventID: eventID, Content: content})
	return nil
}

// Published returns the events captured so far.
func (m *MockPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

// --- Lock Mock ---

// MockLock is an always-acquirable reconciliation lock.
type MockLock struct {
	AcquireFunc func(ctx context.Context) (bool, error)
	ReleaseFunc func(ctx context.Context) error

	mu       sync.Mutex
	acquired int
	released int
}

func (m *MockLock) Acquire(ctx context.Context) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired++
	return true, nil
}

func (m *MockLock) Release(ctx context.Context) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	return nil
}

// Counts returns how many times the lock was acquired and released.
func (m *MockLock) Counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}

// --- Gateway Client Stub ---

// StubGatewayClient is a gateway.Client with per-call overrides.
type StubGatewayClient struct {
	GatewayName string

	ProcessPaymentFunc func(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	VerifyPaymentFunc  func(ctx context.Context, transactionID string) (*gateway.Result, error)
	RefundPaymentFunc  func(ctx context.Context, transactionID string, amountCents int64) (*gateway.Result, error)

	mu           sync.Mutex
	processCalls int
	verifyCalls  int
	refundCalls  int
}

func (s *StubGatewayClient) Name() string {
	if s.GatewayName != "" {
		return s.GatewayName
	}
	return "stub"
}

func (s *StubGatewayClient) ProcessPayment(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	s.mu.Lock()
	s.processCalls++
	s.mu.Unlock()
	if s.ProcessPaymentFunc != nil {
		return s.ProcessPaymentFunc(ctx, req)
	}
	return &gateway.Result{IsSuccess: true, TransactionID: "stub-tx-" + req.PaymentID.String()}, nil
}

func (s *StubGatewayClient) VerifyPayment(ctx context.Context, transactionID string) (*gateway.Result, error) {
	s.mu.Lock()
	s.verifyCalls++
	s.mu.Unlock()
	if s.VerifyPaymentFunc != nil {
		return s.VerifyPaymentFunc(ctx, transactionID)
	}
	return &gateway.Result{IsSuccess: true, TransactionID: transactionID}, nil
}

func (s *StubGatewayClient) RefundPayment(ctx context.Context, transactionID string, amountCents int64) (*gateway.Result, error) {
	s.mu.Lock()
	s.refundCalls++
	s.mu.Unlock()
	if s.RefundPaymentFunc != nil {
		return s.RefundPaymentFunc(ctx, transactionID, amountCents)
	}
	return &gateway.Result{IsSuccess: true, TransactionID: "refund-" + transactionID}, nil
}

// ProcessCalls returns how many times ProcessPayment was invoked.
func (s *StubGatewayClient) ProcessCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processCalls
}

// VerifyCalls returns how many times VerifyPayment was invoked.
func (s *StubGatewayClient) VerifyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyCalls
}
