/*
scheduler.go - Periodic valuation sweep

PURPOSE:
  Every mutation already revalues its product inside the same
  transaction, so under normal operation derived fields never drift.
  The sweep exists for the abnormal cases: manual database edits,
  partial restores from backup, or bugs in a future migration. It
  periodically re-runs the revaluation over every product; since
  revaluation is idempotent, a clean database makes the sweep a no-op.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Revalues products one at a time through the ledger service, so the
    per-product serialization and transaction boundary still apply
  - Logs (at warn) any product whose stored fields drifted from the
    recomputed values

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweep is active (default: true)

USAGE:
  sweep := api.NewValuationSweep(svc, logger)
  sweep.Start()
  // ... later
  sweep.Stop()

SEE ALSO:
  - ledger/valuation.go: The idempotent recomputation being swept
  - cmd/server/main.go: Start/Stop wiring
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/inventory-ledger/ledger"
)

// ValuationSweep periodically recomputes every product's derived fields.
type ValuationSweep struct {
	Svc           *ledger.Service
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewValuationSweep creates a sweep over the ledger service.
func NewValuationSweep(svc *ledger.Service, log zerolog.Logger) *ValuationSweep {
	return &ValuationSweep{
		Svc:           svc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (v *ValuationSweep) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.Enabled || v.ticker != nil {
		return
	}

	v.ticker = time.NewTicker(v.CheckInterval)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for {
			select {
			case <-v.ticker.C:
				v.RunOnce(context.Background())
			case <-v.stop:
				return
			}
		}
	}()

	v.log.Info().Dur("interval", v.CheckInterval).Msg("valuation sweep started")
}

// Stop halts the sweep and waits for an in-flight run to finish.
func (v *ValuationSweep) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ticker == nil {
		return
	}
	v.ticker.Stop()
	close(v.stop)
	v.wg.Wait()
	v.ticker = nil

	v.log.Info().Msg("valuation sweep stopped")
}

// RunOnce revalues every product, logging any drift it repaired.
// Safe to call directly; the scheduled runs use it too.
func (v *ValuationSweep) RunOnce(ctx context.Context) {
	products, err := v.Svc.ListProducts(ctx)
	if err != nil {
		v.log.Error().Err(err).Msg("valuation sweep: listing products failed")
		return
	}

	for _, before := range products {
		after, err := v.Svc.Revalue(ctx, before.ID)
		if err != nil {
			v.log.Error().Err(err).Str("product_id", before.ID).Msg("valuation sweep: revalue failed")
			continue
		}
		if !before.CurrentStock.Equal(after.CurrentStock) || !before.AverageCost.Equal(after.AverageCost) {
			v.log.Warn().
				Str("product_id", before.ID).
				Str("stock_before", before.CurrentStock.String()).
				Str("stock_after", after.CurrentStock.String()).
				Str("avg_cost_before", before.AverageCost.String()).
				Str("avg_cost_after", after.AverageCost.String()).
				Msg("valuation sweep repaired drifted product")
		}
	}
}
