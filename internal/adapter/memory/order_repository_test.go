package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/restaurant/internal/domain"
	"github.com/YelzhanWeb/restaurant/internal/interfaces"
)

func newOrder(number, tx, userID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		Number:        number,
		TransactionID: tx,
		UserID:        userID,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		KitchenStatus: domain.KitchenPending,
		CreatedAt:     createdAt,
	}
}

func TestOrderRepository_CreateUniqueness(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	o := newOrder("ORD-1", "tx-1", "u1", now)
	require.NoError(t, repo.Create(ctx, o))
	assert.NotEmpty(t, o.ID)
	assert.EqualValues(t, 1, o.Version)

	assert.ErrorIs(t, repo.Create(ctx, newOrder("ORD-1", "tx-2", "u1", now)), domain.ErrDuplicateOrderNumber)
	assert.ErrorIs(t, repo.Create(ctx, newOrder("ORD-2", "tx-1", "u1", now)), domain.ErrDuplicateTransaction)
}

func TestOrderRepository_VersionCheck(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	o := newOrder("ORD-1", "tx-1", "u1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, o))

	first, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)

	first.CustomerNotes = "first"
	require.NoError(t, repo.Update(ctx, first))
	assert.EqualValues(t, 2, first.Version)

	second.CustomerNotes = "second"
	assert.ErrorIs(t, repo.Update(ctx, second), domain.ErrVersionConflict)

	stored, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.CustomerNotes)

	// Returned copies never alias the stored record.
	stored.CustomerNotes = "mutated"
	again, _ := repo.FindByID(ctx, o.ID)
	assert.Equal(t, "first", again.CustomerNotes)
}

func TestOrderRepository_ListPaging(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, user := range []string{"u1", "u2", "u1", "u1"} {
		o := newOrder("ORD-"+string(rune('a'+i)), "tx-"+string(rune('a'+i)), user, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, o))
	}

	page, total, err := repo.List(ctx, interfaces.OrderFilter{UserID: "u1", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "ORD-d", page[0].Number, "newest first")
	assert.Equal(t, "ORD-c", page[1].Number)

	page, _, err = repo.List(ctx, interfaces.OrderFilter{UserID: "u1", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ORD-a", page[0].Number)

	page, total, err = repo.List(ctx, interfaces.OrderFilter{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Empty(t, page)
}

func TestOrderRepository_MarkArchived(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	o := newOrder("ORD-1", "tx-1", "u1", time.Now().UTC())
	o.Status = domain.StatusDelivered
	require.NoError(t, repo.Create(ctx, o))

	pending, err := repo.FindDeliveredUnarchived(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, repo.MarkArchived(ctx, o.ID))
	pending, err = repo.FindDeliveredUnarchived(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)

	var nf *domain.NotFoundError
	assert.ErrorAs(t, repo.MarkArchived(ctx, "missing"), &nf)
}

func TestOrderRepository_StaleUpdateAfterArchiveConflicts(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	o := newOrder("ORD-1", "tx-1", "u1", time.Now().UTC())
	o.Status = domain.StatusDelivered
	require.NoError(t, repo.Create(ctx, o))

	stale, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, repo.MarkArchived(ctx, o.ID))

	stale.KitchenHidden = true
	assert.ErrorIs(t, repo.Update(ctx, stale), domain.ErrVersionConflict)

	stored, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.ArchivedToHistory)
	assert.EqualValues(t, 2, stored.Version)
}
