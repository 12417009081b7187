package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var ErrOutboxEventNotFound = errors.New("outbox event not found")

// OutboxRepository defines the interface for outbox event delivery bookkeeping
type OutboxRepository interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	Reset(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error)
	ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*domain.OutboxEvent, error)
}

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new instance of OutboxRepository
func NewOutboxRepository(db *sql.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

const outboxColumns = `id, aggregate_id, event_type, payload, attempts, last_error, next_attempt_at,
	processed_at, failed_at, created_at`

// ClaimDue leases up to limit pending events whose next attempt is due. Rows locked by a
// concurrent claimer are skipped.
func (r *outboxRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET locked_until = NOW() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE processed_at IS NULL AND failed_at IS NULL
			  AND next_attempt_at <= NOW()
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := r.db.QueryContext(ctx, query, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

// MarkProcessed records successful delivery
func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "mark outbox event processed", `
		UPDATE outbox_events SET processed_at = NOW(), locked_until = NULL, last_error = NULL
		WHERE id = $1`, id)
}

// Reschedule records a failed attempt and the time of the next one
func (r *outboxRepository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time, lastError string) error {
	return r.exec(ctx, "reschedule outbox event", `
		UPDATE outbox_events SET attempts = $2, next_attempt_at = $3, last_error = $4, locked_until = NULL
		WHERE id = $1`, id, attempts, next, lastError)
}

// MarkFailed parks the event until an operator resets it
func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return r.exec(ctx, "mark outbox event failed", `
		UPDATE outbox_events SET attempts = $2, last_error = $3, failed_at = NOW(), locked_until = NULL
		WHERE id = $1`, id, attempts, lastError)
}

// Reset makes a failed or pending event due immediately with a fresh attempt budget
func (r *outboxRepository) Reset(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "reset outbox event", `
		UPDATE outbox_events
		SET attempts = 0, failed_at = NULL, locked_until = NULL, next_attempt_at = NOW()
		WHERE id = $1 AND processed_at IS NULL`, id)
}

// FindByID retrieves a single event
func (r *outboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox event: %w", err)
	}
	defer rows.Close()

	events, err := scanOutboxEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrOutboxEventNotFound
	}
	return events[0], nil
}

// ListByAggregate returns the events recorded for one order, oldest first
func (r *outboxRepository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events WHERE aggregate_id = $1 ORDER BY created_at ASC, event_type ASC`,
		aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox events: %w", err)
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

func (r *outboxRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOutboxEventNotFound
	}
	return nil
}

func scanOutboxEvents(rows *sql.Rows) ([]*domain.OutboxEvent, error) {
	events := []*domain.OutboxEvent{}
	for rows.Next() {
		event := &domain.OutboxEvent{}
		var payload []byte
		err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.Type,
			&payload,
			&event.Attempts,
			&event.LastError,
			&event.NextAttemptAt,
			&event.ProcessedAt,
			&event.FailedAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	return events, nil
}

// insertOutboxEvents writes events inside the caller's transaction
func insertOutboxEvents(ctx context.Context, tx *sql.Tx, events []*domain.OutboxEvent) error {
	for _, event := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_events (id, aggregate_id, event_type, payload, attempts, next_attempt_at, created_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6)`,
			event.ID, event.AggregateID, event.Type, []byte(event.Payload), event.NextAttemptAt, event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s event: %w", event.Type, err)
		}
	}
	return nil
}
