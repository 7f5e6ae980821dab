// Package reconcile implements the Reconciler (C15): a background loop
// that finds cross-chain payments stuck in domain.AttestationPending
// (the router or engine crashed between burn and redeem) and resumes
// each one at the attestation wait, the one point in the burn-and-mint
// sequence the Transfer Engine persists before blocking.
package reconcile

import (
	"context"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
	"github.com/bitsandtea/agent-mrkt/internal/transfer"
	"github.com/rs/zerolog"
)

// Resumer is the subset of *transfer.Engine the reconciler drives.
type Resumer interface {
	ResumePending(ctx context.Context, payment *domain.CrossChainPayment) (*transfer.Result, error)
}

// Reconciler polls the store for pending cross-chain payments on Interval
// and resumes each one through Resumer.
type Reconciler struct {
	store    store.Store
	resume   Resumer
	interval time.Duration
	logger   zerolog.Logger
}

// New builds a Reconciler. A non-positive interval falls back to 30s.
func New(st store.Store, resumer Resumer, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{store: st, resume: resumer, interval: interval, logger: logger}
}

// Run blocks, polling until ctx is cancelled. Intended to be launched in
// its own goroutine from main.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	pending, err := r.store.ListPendingCrossChainPayments(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reconciler: list pending cross-chain payments")
		return
	}
	for _, payment := range pending {
		if ctx.Err() != nil {
			return
		}
		// Rows created less than one interval ago are left for a later tick.
		if time.Since(payment.CreatedAt) < r.interval {
			continue
		}
		r.resumeOne(ctx, payment)
	}
}

func (r *Reconciler) resumeOne(ctx context.Context, payment *domain.CrossChainPayment) {
	log := r.logger.With().Str("cross_chain_payment_id", payment.ID).Logger()
	log.Info().Msg("reconciler: resuming pending cross-chain payment")

	if _, err := r.resume.ResumePending(ctx, payment); err != nil {
		log.Error().Err(err).Msg("reconciler: resume failed, will retry next tick")
		return
	}
	log.Info().Msg("reconciler: resumed payment completed")
}
