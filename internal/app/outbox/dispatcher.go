package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/restaurant/internal/adapter/logger"
	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

// Handler executes one task. A returned error schedules a retry.
type Handler func(ctx context.Context, task *domain.OutboxTask) error

type Config struct {
	PollInterval time.Duration
	Lease        time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	BatchSize    int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// Dispatcher runs persisted side effects with retries and backoff.
type Dispatcher struct {
	repo   interfaces.OutboxRepository
	logger logger.Logger
	cfg    Config

	mu       sync.RWMutex
	handlers map[domain.TaskType]Handler

	nudge chan struct{}
	now   func() time.Time
}

type Option func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(repo interfaces.OutboxRepository, logger logger.Logger, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:     repo,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		handlers: make(map[domain.TaskType]Handler),
		nudge:    make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Register(t domain.TaskType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Enqueue persists the task and wakes the dispatcher.
func (d *Dispatcher) Enqueue(ctx context.Context, task *domain.OutboxTask) error {
	if err := d.repo.Insert(ctx, task); err != nil {
		return fmt.Errorf("failed to persist %s task: %w", task.Type, err)
	}
	select {
	case d.nudge <- struct{}{}:
	default:
	}
	return nil
}

func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("outbox_started", "Outbox dispatcher started", "", map[string]interface{}{
		"poll_interval": d.cfg.PollInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox_stopped", "Outbox dispatcher stopped", "", nil)
			return nil
		case <-ticker.C:
		case <-d.nudge:
		}
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox_claim_failed", "Failed to claim outbox tasks", "", nil, err)
		}
	}
}

// RunOnce claims and executes the tasks that are due now. It returns the
// number of tasks that completed successfully.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	tasks, err := d.repo.ClaimDue(ctx, d.now(), d.cfg.Lease, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim tasks: %w", err)
	}

	done := 0
	for _, task := range tasks {
		if d.execute(ctx, task) {
			done++
		}
	}
	return done, nil
}

func (d *Dispatcher) execute(ctx context.Context, task *domain.OutboxTask) bool {
	d.mu.RLock()
	h, ok := d.handlers[task.Type]
	d.mu.RUnlock()

	var runErr error
	if !ok {
		runErr = fmt.Errorf("no handler registered for task type %s", task.Type)
	} else {
		runErr = h(ctx, task)
	}

	details := map[string]interface{}{
		"task_id":   task.ID,
		"task_type": task.Type,
		"attempt":   task.Attempts + 1,
	}
	if runErr == nil {
		task.MarkDone(d.now())
		d.logger.Debug("outbox_task_done", "Outbox task completed", "", details)
	} else {
		task.MarkFailed(runErr, d.now(), d.Backoff(task.Attempts))
		if task.Status == domain.TaskDead {
			d.logger.Error("outbox_task_dead", "Outbox task exhausted its attempts", "", details, runErr)
		} else {
			details["next_attempt_at"] = task.NextAttemptAt
			d.logger.Error("outbox_task_failed", "Outbox task failed, will retry", "", details, runErr)
		}
	}

	if err := d.repo.Save(ctx, task); err != nil {
		d.logger.Error("outbox_save_failed", "Failed to record outbox task result", "", details, err)
		return false
	}
	return runErr == nil
}

// Backoff returns BaseBackoff * 2^attempts capped at MaxBackoff.
func (d *Dispatcher) Backoff(attempts int) time.Duration {
	b := d.cfg.BaseBackoff
	for i := 0; i < attempts; i++ {
		b *= 2
		if b >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return b
}

func (d *Dispatcher) Stats(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	counts, err := d.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox tasks: %w", err)
	}
	for _, s := range []domain.TaskStatus{domain.TaskPending, domain.TaskProcessing, domain.TaskDone, domain.TaskDead} {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}
	return counts, nil
}
