package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxTask_Lifecycle(t *testing.T) {
	task, err := NewOutboxTask(TaskArchiveOrder, map[string]string{"orderId": "o1"}, 2)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, task.Status)

	var payload struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, task.Decode(&payload))
	assert.Equal(t, "o1", payload.OrderID)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task.MarkFailed(errors.New("boom"), now, time.Minute)
	assert.Equal(t, TaskPending, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, now.Add(time.Minute), task.NextAttemptAt)
	assert.Equal(t, "boom", task.LastError)

	task.MarkFailed(errors.New("boom again"), now, time.Minute)
	assert.Equal(t, TaskDead, task.Status)
	assert.Equal(t, 2, task.Attempts)
}

func TestOutboxTask_MarkDone(t *testing.T) {
	task, err := NewOutboxTask(TaskRecomputeRatings, map[string]string{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, task.MaxAttempts)

	lease := time.Now()
	task.LeaseUntil = &lease
	task.MarkDone(time.Now())
	assert.Equal(t, TaskDone, task.Status)
	assert.Nil(t, task.LeaseUntil)
}

func TestNewOrderHistory_Snapshot(t *testing.T) {
	o := deliveredOrder(t)
	at := time.Now()

	h := NewOrderHistory(o, ArchiveReasonDelivered, at)
	assert.Equal(t, o.ID, h.OriginalOrderID)
	assert.Equal(t, o.UserID, h.UserID)
	assert.Equal(t, o.Number, h.OrderNumber)
	assert.True(t, h.Order.ArchivedToHistory)
	assert.False(t, o.ArchivedToHistory)
	assert.Equal(t, o.Items, h.Order.Items)
}
