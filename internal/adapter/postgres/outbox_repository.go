package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

type outboxRepository struct {
	db DB
}

func NewOutboxRepository(db DB) interfaces.OutboxRepository {
	return &outboxRepository{db: db}
}

const outboxColumns = `id, type, payload, status, attempts, max_attempts, next_attempt_at, lease_until, last_error, created_at, updated_at`

func (r *outboxRepository) Insert(ctx context.Context, task *domain.OutboxTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	query := `INSERT INTO outbox (` + outboxColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, query,
		task.ID, task.Type, []byte(task.Payload), task.Status, task.Attempts, task.MaxAttempts,
		task.NextAttemptAt, task.LeaseUntil, task.LastError, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox task: %w", err)
	}
	return nil
}

// ClaimDue uses FOR UPDATE SKIP LOCKED so several dispatchers can share the table.
func (r *outboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.OutboxTask, error) {
	query := `
		UPDATE outbox SET status = $1, lease_until = $2, updated_at = $3
		WHERE id IN (
			SELECT id FROM outbox
			WHERE (status = $4 AND next_attempt_at <= $3)
			   OR (status = $1 AND lease_until < $3)
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := r.db.Query(ctx, query, domain.TaskProcessing, now.Add(lease), now, domain.TaskPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.OutboxTask, 0)
	for rows.Next() {
		var (
			t       domain.OutboxTask
			payload []byte
		)
		err := rows.Scan(&t.ID, &t.Type, &payload, &t.Status, &t.Attempts, &t.MaxAttempts,
			&t.NextAttemptAt, &t.LeaseUntil, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox task: %w", err)
		}
		t.Payload = payload
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox tasks: %w", err)
	}
	return tasks, nil
}

func (r *outboxRepository) Save(ctx context.Context, task *domain.OutboxTask) error {
	query := `
		UPDATE outbox
		SET status = $2, attempts = $3, next_attempt_at = $4, lease_until = $5, last_error = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, task.ID, task.Status, task.Attempts, task.NextAttemptAt, task.LeaseUntil, task.LastError, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save outbox task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("outbox task", task.ID)
	}
	return nil
}

func (r *outboxRepository) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outbox count: %w", err)
		}
		counts[domain.TaskStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox counts: %w", err)
	}
	return counts, nil
}
