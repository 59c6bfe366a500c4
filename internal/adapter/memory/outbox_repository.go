package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/restaurant/internal/domain"
)

type OutboxRepository struct {
	mu    sync.Mutex
	tasks map[string]*domain.OutboxTask
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{tasks: make(map[string]*domain.OutboxTask)}
}

func (r *OutboxRepository) Insert(_ context.Context, task *domain.OutboxTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *OutboxRepository) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.OutboxTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*domain.OutboxTask, 0)
	for _, t := range r.tasks {
		if claimable(t, now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*domain.OutboxTask, len(due))
	until := now.Add(lease)
	for i, t := range due {
		t.Status = domain.TaskProcessing
		t.LeaseUntil = &until
		t.UpdatedAt = now
		out[i] = t.Clone()
	}
	return out, nil
}

// claimable also picks up processing tasks whose lease expired, which happens
// when a dispatcher dies mid-task.
func claimable(t *domain.OutboxTask, now time.Time) bool {
	switch t.Status {
	case domain.TaskPending:
		return !t.NextAttemptAt.After(now)
	case domain.TaskProcessing:
		return t.LeaseUntil != nil && t.LeaseUntil.Before(now)
	}
	return false
}

func (r *OutboxRepository) Save(_ context.Context, task *domain.OutboxTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; !ok {
		return domain.NewNotFoundError("outbox task", task.ID)
	}
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *OutboxRepository) CountByStatus(_ context.Context) (map[domain.TaskStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[domain.TaskStatus]int64)
	for _, t := range r.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// Tasks returns a snapshot of every task, oldest first.
func (r *OutboxRepository) Tasks() []*domain.OutboxTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.OutboxTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
