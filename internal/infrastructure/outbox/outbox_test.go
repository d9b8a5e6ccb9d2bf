package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/nativebites/checkout/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

// startedBus runs a bus for the duration of the test and verifies that no
// goroutine outlives the shutdown. The leak check is registered first so it
// runs after Stop.
func startedBus(t *testing.T) *Bus {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })

	bus := NewBus(nil)
	bus.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
	})
	return bus
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := startedBus(t)

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	var seen []string

	handler := func(tag string) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) error {
			mu.Lock()
			seen = append(seen, tag+":"+e.EventName())
			mu.Unlock()
			wg.Done()
			return nil
		}
	}
	bus.Subscribe("order.paid", handler("audit"))
	bus.Subscribe("order.paid", handler("mail"))

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.paid"}))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"audit:order.paid", "mail:order.paid"}, seen)
}

func TestBusIgnoresUnsubscribedEvents(t *testing.T) {
	bus := startedBus(t)

	delivered := make(chan string, 2)
	bus.Subscribe("order.paid", func(ctx context.Context, e domoutbox.Event) error {
		delivered <- e.EventName()
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.created"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.paid"}))

	select {
	case name := <-delivered:
		assert.Equal(t, "order.paid", name)
	case <-time.After(time.Second):
		t.Fatal("subscribed event was not delivered")
	}
	select {
	case name := <-delivered:
		t.Fatalf("unexpected delivery: %s", name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSurvivesHandlerPanic(t *testing.T) {
	bus := startedBus(t)

	delivered := make(chan struct{}, 1)
	bus.Subscribe("order.paid", func(ctx context.Context, e domoutbox.Event) error {
		panic("handler exploded")
	})
	bus.Subscribe("order.fulfilled", func(ctx context.Context, e domoutbox.Event) error {
		delivered <- struct{}{}
		return nil
	})

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, testEvent{name: "order.paid"}))
	require.NoError(t, bus.Publish(ctx, testEvent{name: "order.fulfilled"}))

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("bus stopped dispatching after a handler panic")
	}
}

func TestBusPublishNilEventIsNoop(t *testing.T) {
	bus := NewBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), nil))
}

func TestBusStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	bus.Stop(ctx)
	bus.Stop(ctx)
}
