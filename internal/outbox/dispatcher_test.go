package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type eventState struct {
	event     *domain.OutboxEvent
	processed bool
	failed    bool
	claimed   bool
}

type memoryOutbox struct {
	mu     sync.Mutex
	events map[uuid.UUID]*eventState
	order  []uuid.UUID
	now    func() time.Time
}

func newMemoryOutbox(now func() time.Time) *memoryOutbox {
	return &memoryOutbox{events: make(map[uuid.UUID]*eventState), now: now}
}

func (m *memoryOutbox) add(eventType domain.EventType) *domain.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	event := &domain.OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   uuid.New(),
		Type:          eventType,
		Payload:       []byte(`{}`),
		NextAttemptAt: m.now(),
		CreatedAt:     m.now(),
	}
	m.events[event.ID] = &eventState{event: event}
	m.order = append(m.order, event.ID)
	return event
}

func (m *memoryOutbox) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OutboxEvent
	for _, id := range m.order {
		s := m.events[id]
		if s.processed || s.failed || s.claimed || s.event.NextAttemptAt.After(m.now()) {
			continue
		}
		s.claimed = true
		copied := *s.event
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryOutbox) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.events[id]
	s.processed, s.claimed = true, false
	return nil
}

func (m *memoryOutbox) Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.events[id]
	s.event.Attempts = attempts
	s.event.NextAttemptAt = next
	s.event.LastError = &lastError
	s.claimed = false
	return nil
}

func (m *memoryOutbox) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.events[id]
	s.event.Attempts = attempts
	s.event.LastError = &lastError
	s.failed, s.claimed = true, false
	return nil
}

func (m *memoryOutbox) Reset(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.events[id]
	if !ok {
		return repository.ErrOutboxEventNotFound
	}
	s.failed = false
	s.event.Attempts = 0
	s.event.NextAttemptAt = m.now()
	return nil
}

func (m *memoryOutbox) FindByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.events[id]
	if !ok {
		return nil, repository.ErrOutboxEventNotFound
	}
	copied := *s.event
	return &copied, nil
}

func (m *memoryOutbox) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OutboxEvent
	for _, id := range m.order {
		if m.events[id].event.AggregateID == aggregateID {
			out = append(out, m.events[id].event)
		}
	}
	return out, nil
}

func (m *memoryOutbox) state(id uuid.UUID) eventState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *m.events[id]
	copied := *s.event
	s.event = &copied
	return s
}

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestDispatcher(cfg config.OutboxConfig) (*Dispatcher, *memoryOutbox) {
	store := newMemoryOutbox(func() time.Time { return fixedNow })
	d := NewDispatcher(store, cfg, zap.NewNop())
	d.now = func() time.Time { return fixedNow }
	return d, store
}

func TestDispatcher_DeliversAndMarksProcessed(t *testing.T) {
	d, store := newTestDispatcher(config.OutboxConfig{BatchSize: 10, Workers: 3})

	var delivered atomic.Int32
	d.Handle(domain.EventOrderCreated, func(ctx context.Context, event *domain.OutboxEvent) error {
		delivered.Add(1)
		return nil
	})

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, store.add(domain.EventOrderCreated).ID)
	}

	n, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.EqualValues(t, 5, delivered.Load())
	for _, id := range ids {
		assert.True(t, store.state(id).processed)
	}

	n, err = d.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_FailureIsRescheduledWithBackoff(t *testing.T) {
	d, store := newTestDispatcher(config.OutboxConfig{MaxAttempts: 3})
	d.Handle(domain.EventOrderConfirmationEmail, func(ctx context.Context, event *domain.OutboxEvent) error {
		return errors.New("failed to send email, status code: 503")
	})
	event := store.add(domain.EventOrderConfirmationEmail)

	_, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)

	s := store.state(event.ID)
	assert.False(t, s.processed)
	assert.False(t, s.failed)
	assert.Equal(t, 1, s.event.Attempts)
	assert.Equal(t, fixedNow.Add(2*time.Second), s.event.NextAttemptAt)
	assert.Equal(t, "failed to send email, status code: 503", *s.event.LastError)
}

func TestDispatcher_MaxAttemptsParksEvent(t *testing.T) {
	d, store := newTestDispatcher(config.OutboxConfig{MaxAttempts: 3})
	d.Handle(domain.EventShipmentRequested, func(ctx context.Context, event *domain.OutboxEvent) error {
		return errors.New("Failed to create order: 500")
	})
	event := store.add(domain.EventShipmentRequested)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Reset(context.Background(), event.ID))
		store.mu.Lock()
		store.events[event.ID].event.Attempts = i
		store.mu.Unlock()
		_, err := d.ProcessBatch(context.Background())
		require.NoError(t, err)
	}

	s := store.state(event.ID)
	assert.True(t, s.failed)
	assert.Equal(t, 3, s.event.Attempts)
}

func TestDispatcher_PermanentErrorsAndUnknownTypesFailImmediately(t *testing.T) {
	d, store := newTestDispatcher(config.OutboxConfig{})
	d.Handle(domain.EventShipmentRequested, func(ctx context.Context, event *domain.OutboxEvent) error {
		return backoff.Permanent(errors.New("Invalid shipping address format"))
	})
	permanent := store.add(domain.EventShipmentRequested)
	unknown := store.add(domain.EventType("order.archived"))

	_, err := d.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.True(t, store.state(permanent.ID).failed)
	assert.Equal(t, 1, store.state(permanent.ID).event.Attempts)
	assert.True(t, store.state(unknown.ID).failed)
	assert.Contains(t, *store.state(unknown.ID).event.LastError, "no handler registered for order.archived")
}

func TestDispatcher_RunDeliversOnKickAndStops(t *testing.T) {
	d, store := newTestDispatcher(config.OutboxConfig{PollInterval: time.Hour})
	delivered := make(chan uuid.UUID, 1)
	d.Handle(domain.EventOrderConfirmed, func(ctx context.Context, event *domain.OutboxEvent) error {
		delivered <- event.ID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	event := store.add(domain.EventOrderConfirmed)
	d.Kick()

	select {
	case id := <-delivered:
		assert.Equal(t, event.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered after kick")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_KickNeverBlocks(t *testing.T) {
	d, _ := newTestDispatcher(config.OutboxConfig{})
	for i := 0; i < 100; i++ {
		d.Kick()
	}
}

// Feature: storefront, Property: retry delays grow exponentially up to ten minutes
func TestProperty_RetryDelay(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("delays are monotonic and capped", prop.ForAll(
		func(attempts int) bool {
			delay := RetryDelay(attempts)
			next := RetryDelay(attempts + 1)
			return delay > 0 && delay <= maxRetryDelay && next >= delay
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
