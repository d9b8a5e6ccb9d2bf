package payment

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/nativebites/checkout/internal/domain/payment"
)

// SimulatedGateway mints intent refs locally. It stands in for the external
// processor in local runs and tests; confirmations are then fed back through
// the webhook or client-callback endpoints by the operator or test.
type SimulatedGateway struct {
	mu      sync.Mutex
	seq     int
	failing bool
}

func NewSimulatedGateway() *SimulatedGateway { return &SimulatedGateway{} }

func (g *SimulatedGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*domain.Intent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failing {
		return nil, fmt.Errorf("simulated gateway unavailable")
	}

	g.seq++
	ref := fmt.Sprintf("pi_sim_%06d", g.seq)
	return &domain.Intent{
		Ref:          ref,
		ClientSecret: ref + "_secret",
	}, nil
}

// SetFailing toggles upstream-failure behavior (primarily for tests).
func (g *SimulatedGateway) SetFailing(failing bool) {
	g.mu.Lock()
	g.failing = failing
	g.mu.Unlock()
}
