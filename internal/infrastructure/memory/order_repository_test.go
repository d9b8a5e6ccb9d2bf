package memory

import (
	"context"
	"sync"
	"testing"

	domain "github.com/nativebites/checkout/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingOrder(t *testing.T, id, userID string) *domain.Order {
	t.Helper()
	o, err := domain.New(id, userID,
		[]domain.Item{{ProductID: "p1", Quantity: 2, UnitPrice: 500}},
		domain.Amounts{ItemsTotal: 1000, Tax: 80, Shipping: 200, GrandTotal: 1280},
	)
	require.NoError(t, err)
	return o
}

func TestOrderRepositoryInsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	o := newPendingOrder(t, "o1", "u1")

	require.NoError(t, repo.Insert(ctx, o))
	assert.ErrorIs(t, repo.Insert(ctx, o), domain.ErrConflict)

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepositoryClonesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	o := newPendingOrder(t, "o1", "u1")
	require.NoError(t, repo.Insert(ctx, o))

	// Mutating the caller's copy must not leak into the store.
	o.Items[0].Quantity = 99
	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Items[0].Quantity)

	got.Items[0].Quantity = 77
	again, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)
}

func TestOrderRepositoryUpdateIfStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	o := newPendingOrder(t, "o1", "u1")
	require.NoError(t, repo.Insert(ctx, o))
	require.NoError(t, o.AttachIntent("pi_1"))

	updated := o.Clone()
	require.NoError(t, updated.PaymentConfirmed(domain.Confirmation{ExternalID: "ch_1", Status: "succeeded"}))

	require.NoError(t, repo.UpdateIfStatus(ctx, updated, domain.StatusPending))

	// Second conditional write against the stale expectation loses.
	other := o.Clone()
	require.NoError(t, other.PaymentConfirmed(domain.Confirmation{ExternalID: "ch_2", Status: "succeeded"}))
	assert.ErrorIs(t, repo.UpdateIfStatus(ctx, other, domain.StatusPending), domain.ErrConflict)

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)
	require.NotNil(t, got.Confirmation)
	assert.Equal(t, "ch_1", got.Confirmation.ExternalID)
}

func TestOrderRepositoryUpdateIfStatusSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	o := newPendingOrder(t, "o1", "u1")
	require.NoError(t, o.AttachIntent("pi_1"))
	require.NoError(t, repo.Insert(ctx, o))

	const writers = 32
	var wg sync.WaitGroup
	wins := make(chan int, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			candidate := o.Clone()
			if err := candidate.PaymentConfirmed(domain.Confirmation{ExternalID: "ch_1", Status: "succeeded"}); err != nil {
				return
			}
			if err := repo.UpdateIfStatus(ctx, candidate, domain.StatusPending); err == nil {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestOrderRepositoryUpdateIfIntentUnset(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	o := newPendingOrder(t, "o1", "u1")
	require.NoError(t, repo.Insert(ctx, o))

	first := o.Clone()
	require.NoError(t, first.AttachIntent("pi_1"))
	require.NoError(t, repo.UpdateIfIntentUnset(ctx, first, domain.StatusPending))

	// A second attach loses even though the status is still pending: the
	// stored ref is no longer empty.
	second := o.Clone()
	require.NoError(t, second.AttachIntent("pi_2"))
	assert.ErrorIs(t, repo.UpdateIfIntentUnset(ctx, second, domain.StatusPending), domain.ErrConflict)

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", got.PaymentIntentRef)

	missing := newPendingOrder(t, "ghost", "u1")
	require.NoError(t, missing.AttachIntent("pi_3"))
	assert.ErrorIs(t, repo.UpdateIfIntentUnset(ctx, missing, domain.StatusPending), domain.ErrNotFound)
}

func TestOrderRepositoryListByUserAndStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	require.NoError(t, repo.Insert(ctx, newPendingOrder(t, "o1", "u1")))
	require.NoError(t, repo.Insert(ctx, newPendingOrder(t, "o2", "u1")))
	require.NoError(t, repo.Insert(ctx, newPendingOrder(t, "o3", "u2")))

	mine, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := repo.ListByStatus(ctx, domain.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	paid, err := repo.ListByStatus(ctx, domain.StatusPaid)
	require.NoError(t, err)
	assert.Empty(t, paid)
}
