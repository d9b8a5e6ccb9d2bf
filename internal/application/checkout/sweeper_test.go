package checkout

import (
	"context"
	"testing"
	"time"

	domain "github.com/nativebites/checkout/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// stuckFulfillingOrder plants an order that looks like a crash victim: the
// paid and fulfilling transitions happened, but no side effect ran and the
// last write is older than the sweep grace period.
func stuckFulfillingOrder(t *testing.T, f *fixture, id string) *domain.Order {
	t.Helper()
	ctx := context.Background()

	o, err := domain.New(id, "u1",
		[]domain.Item{{ProductID: "p1", Quantity: 2, UnitPrice: 500}},
		domain.Amounts{ItemsTotal: 1000, Tax: 80, Shipping: 200, GrandTotal: 1280},
	)
	require.NoError(t, err)
	require.NoError(t, o.AttachIntent("pi_stuck_"+id))
	require.NoError(t, o.PaymentConfirmed(domain.Confirmation{ExternalID: "ch_" + id, Status: "succeeded"}))
	require.NoError(t, o.FulfillmentStarted())
	o.UpdatedAt = time.Now().UTC().Add(-time.Minute)

	require.NoError(t, f.orders.Insert(ctx, o))
	return o
}

func TestSweepOnceResumesStuckOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.ledger.Restock(ctx, "p1", 10))

	cart, err := f.carts.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, cart.SetLine("p1", 2))
	require.NoError(t, f.carts.Save(ctx, cart))

	stuckFulfillingOrder(t, f, "o-stuck")

	sweeper := NewSweeper(f.service, f.orders, time.Hour, nil)
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))

	resumed, err := f.orders.Get(ctx, "o-stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, resumed.Status)

	item, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, item.Stock)

	cart, err = f.carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestSweepOnceDoesNotDoubleDecrement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.ledger.Restock(ctx, "p1", 10))

	// The crash happened after the decrement landed but before the order
	// reached fulfilled. Resumption replays the dedupe key as a no-op.
	o := stuckFulfillingOrder(t, f, "o-stuck")
	require.NoError(t, f.ledger.Decrement(ctx, "p1", 2, o.IdempotencyToken()+"/p1"))

	sweeper := NewSweeper(f.service, f.orders, time.Hour, nil)
	assert.Equal(t, 1, sweeper.SweepOnce(ctx))

	resumed, err := f.orders.Get(ctx, "o-stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, resumed.Status)

	item, err := f.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, item.Stock)
}

func TestSweepOnceHonorsGracePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.ledger.Restock(ctx, "p1", 10))

	// Freshly written fulfilling order: an active worker owns it, leave it be.
	o := stuckFulfillingOrder(t, f, "o-fresh")
	o.UpdatedAt = time.Now().UTC()
	require.NoError(t, f.orders.Update(ctx, o))

	sweeper := NewSweeper(f.service, f.orders, time.Hour, nil)
	assert.Equal(t, 0, sweeper.SweepOnce(ctx))

	current, err := f.orders.Get(ctx, "o-fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilling, current.Status)
}

func TestSweeperStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	f := newFixture(t)

	sweeper := NewSweeper(f.service, f.orders, 10*time.Millisecond, nil)
	sweeper.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	sweeper.Stop(stopCtx)
}
