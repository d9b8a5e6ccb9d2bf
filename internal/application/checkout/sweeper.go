package checkout

import (
	"context"
	"sync"
	"time"

	domain "github.com/nativebites/checkout/internal/domain/order"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"

	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepGrace    = 5 * time.Second
	defaultSweepParallel = 4
	componentSweeper     = "fulfillment_sweeper"
)

// Sweeper resumes orders stuck in fulfilling, typically after a crash between
// the paid transition and fulfillment completion. Resumption is safe because
// every side effect behind applySideEffects is dedupe-guarded.
type Sweeper struct {
	service  *Service
	orders   domain.Repository
	interval time.Duration
	grace    time.Duration
	parallel int
	log      observability.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSweeper(service *Service, orders domain.Repository, interval time.Duration, logger observability.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sweeper{
		service:  service,
		orders:   orders,
		interval: interval,
		grace:    defaultSweepGrace,
		parallel: defaultSweepParallel,
		log:      logger.With(observability.F("component", componentSweeper)),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		go s.loop(bg)
		logctx.FromOr(ctx, s.log).Info("sweeper_started",
			observability.F("interval", s.interval.String()),
		)
	})
}

func (s *Sweeper) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		select {
		case <-s.done:
		case <-ctx.Done():
		}
		logctx.FromOr(ctx, s.log).Info("sweeper_stopped")
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce resumes every fulfilling order older than the grace period and
// reports how many were picked up. Exposed for tests and operator tooling.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	stuck, err := s.orders.ListByStatus(ctx, domain.StatusFulfilling)
	if err != nil {
		s.log.Error("sweep_list_failed", observability.F("error", err.Error()))
		return 0
	}

	cutoff := time.Now().UTC().Add(-s.grace)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	resumed := 0
	for _, o := range stuck {
		if o.UpdatedAt.After(cutoff) {
			continue
		}
		resumed++
		orderID := o.ID
		g.Go(func() error {
			if _, resumeErr := s.service.applySideEffects(gctx, orderID); resumeErr != nil {
				s.log.Warn("sweep_resume_failed",
					observability.F("order_id", orderID),
					observability.F("error", resumeErr.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if resumed > 0 {
		s.log.Info("sweep_done", observability.F("resumed", resumed))
	}
	return resumed
}
