package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskType string

const (
	TaskArchiveOrder     TaskType = "archive_order"
	TaskBroadcastEvent   TaskType = "broadcast_event"
	TaskRecomputeRatings TaskType = "recompute_ratings"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskDone       TaskStatus = "done"
	TaskDead       TaskStatus = "dead"
)

// OutboxTask is a persisted side effect that must eventually run at least once.
type OutboxTask struct {
	ID            string          `json:"id" bson:"_id,omitempty"`
	Type          TaskType        `json:"type" bson:"type"`
	Payload       json.RawMessage `json:"payload" bson:"payload"`
	Status        TaskStatus      `json:"status" bson:"status"`
	Attempts      int             `json:"attempts" bson:"attempts"`
	MaxAttempts   int             `json:"maxAttempts" bson:"maxAttempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt" bson:"nextAttemptAt"`
	LeaseUntil    *time.Time      `json:"leaseUntil,omitempty" bson:"leaseUntil,omitempty"`
	LastError     string          `json:"lastError,omitempty" bson:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt" bson:"updatedAt"`
}

func NewOutboxTask(taskType TaskType, payload any, maxAttempts int) (*OutboxTask, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", taskType, err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := time.Now().UTC()
	return &OutboxTask{
		Type:          taskType,
		Payload:       raw,
		Status:        TaskPending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Decode unmarshals the payload into v.
func (t *OutboxTask) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", t.Type, err)
	}
	return nil
}

func (t *OutboxTask) MarkDone(now time.Time) {
	t.Status = TaskDone
	t.LeaseUntil = nil
	t.LastError = ""
	t.UpdatedAt = now
}

// MarkFailed records a failed attempt. The task is rescheduled after backoff
// or becomes dead once MaxAttempts is reached.
func (t *OutboxTask) MarkFailed(cause error, now time.Time, backoff time.Duration) {
	t.Attempts++
	t.LeaseUntil = nil
	t.UpdatedAt = now
	if cause != nil {
		t.LastError = cause.Error()
	}
	if t.Attempts >= t.MaxAttempts {
		t.Status = TaskDead
		return
	}
	t.Status = TaskPending
	t.NextAttemptAt = now.Add(backoff)
}

func (t *OutboxTask) Clone() *OutboxTask {
	c := *t
	c.Payload = append(json.RawMessage(nil), t.Payload...)
	c.LeaseUntil = cloneTime(t.LeaseUntil)
	return &c
}
