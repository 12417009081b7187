package outbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxRetryDelay  = 10 * time.Minute
	handlerTimeout = time.Minute
)

// Handler delivers one event. Returning an error wrapped with backoff.Permanent parks the
// event without further retries.
type Handler func(ctx context.Context, event *domain.OutboxEvent) error

// Dispatcher delivers committed outbox events to their handlers
type Dispatcher struct {
	repo     repository.OutboxRepository
	cfg      config.OutboxConfig
	lease    time.Duration
	logger   *zap.Logger
	kick     chan struct{}
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[domain.EventType]Handler
}

// NewDispatcher creates a dispatcher. Zero config values fall back to defaults.
func NewDispatcher(repo repository.OutboxRepository, cfg config.OutboxConfig, logger *zap.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &Dispatcher{
		repo:     repo,
		cfg:      cfg,
		lease:    2 * handlerTimeout,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		now:      time.Now,
		handlers: make(map[domain.EventType]Handler),
	}
}

// Handle registers the handler for an event type
func (d *Dispatcher) Handle(eventType domain.EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = h
}

// Kick wakes Run without waiting for the next poll
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run processes batches until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Outbox dispatcher started",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("workers", d.cfg.Workers),
	)

	for {
		n, err := d.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("Outbox batch failed", zap.Error(err))
		}
		// a full batch means more may be waiting
		if n == d.cfg.BatchSize && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.kick:
		}
	}
}

// ProcessBatch claims due events and delivers them concurrently. It returns the number
// of events claimed.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (int, error) {
	events, err := d.repo.ClaimDue(ctx, d.cfg.BatchSize, d.lease)
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for _, event := range events {
		event := event
		g.Go(func() error {
			return d.deliver(ctx, event)
		})
	}
	return len(events), g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, event *domain.OutboxEvent) error {
	d.mu.RLock()
	handler, ok := d.handlers[event.Type]
	d.mu.RUnlock()

	var err error
	if !ok {
		err = backoff.Permanent(fmt.Errorf("no handler registered for %s", event.Type))
	} else {
		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		err = handler(hctx, event)
		cancel()
	}

	// bookkeeping outlives shutdown so a delivered event is not delivered again
	bctx := context.WithoutCancel(ctx)
	if err == nil {
		if markErr := d.repo.MarkProcessed(bctx, event.ID); markErr != nil {
			return markErr
		}
		d.logger.Debug("Outbox event delivered", zap.String("event_id", event.ID.String()), zap.String("event_type", string(event.Type)))
		return nil
	}

	attempts := event.Attempts + 1
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.String("aggregate_id", event.AggregateID.String()),
		zap.Int("attempts", attempts),
		zap.Error(err),
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) || attempts >= d.cfg.MaxAttempts {
		d.logger.Error("Outbox event failed, manual retry required", fields...)
		return d.repo.MarkFailed(bctx, event.ID, attempts, err.Error())
	}

	next := d.now().Add(RetryDelay(attempts))
	d.logger.Warn("Outbox event delivery failed, rescheduling", append(fields, zap.Time("next_attempt_at", next))...)
	return d.repo.Reschedule(bctx, event.ID, attempts, next, err.Error())
}

// RetryDelay is 2^attempts seconds, capped at ten minutes
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	seconds := math.Pow(2, float64(attempts))
	if seconds >= maxRetryDelay.Seconds() {
		return maxRetryDelay
	}
	return time.Duration(seconds) * time.Second
}
