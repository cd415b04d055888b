package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/metrics"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
)

// Reconciler periodically pulls the gateway's full status list and advances
// every locally non-terminal payment that the list resolves. A pass is
// all-or-nothing per cycle: if the list fetch fails the pass is abandoned
// and the next tick retries.
type Reconciler struct {
	log      *slog.Logger
	repo     Repository
	gateway  Gateway
	interval time.Duration
	now      func() time.Time

	inFlight atomic.Bool
}

func NewReconciler(log *slog.Logger, repo Repository, gateway Gateway, interval time.Duration) *Reconciler {
	return &Reconciler{
		log:      log,
		repo:     repo,
		gateway:  gateway,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled. Ticks that fire while a pass is still
// running (including an on-demand one) are skipped, never queued.
func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopping")
			return nil
		case <-t.C:
			if err := r.TriggerNow(ctx); err != nil && !errors.Is(err, ErrPassInFlight) {
				r.log.Error("reconciliation pass failed", "err", err)
			}
		}
	}
}

// TriggerNow runs a single pass unless one is already in flight, in which
// case it returns ErrPassInFlight without waiting.
func (r *Reconciler) TriggerNow(ctx context.Context) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		return ErrPassInFlight
	}
	defer r.inFlight.Store(false)
	return r.pass(ctx)
}

func (r *Reconciler) pass(ctx context.Context) error {
	records, err := r.gateway.ListStatus(ctx)
	if err != nil {
		metrics.ReconcilePassErrors.Inc()
		return fmt.Errorf("fetch gateway status list: %w", err)
	}

	// The gateway list grows without bound; index it once per pass and only
	// walk the locally bounded non-terminal set.
	byConfirmation := make(map[string]StatusRecord, len(records))
	for _, rec := range records {
		byConfirmation[rec.ConfirmationID] = rec
	}

	locals, err := r.repo.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal payments: %w", err)
	}

	for _, p := range locals {
		if p.ConfirmationID == "" {
			continue
		}
		rec, ok := byConfirmation[p.ConfirmationID]
		if !ok {
			// Gateway has no record (yet). Leave local state alone.
			continue
		}
		if err := r.apply(ctx, p, rec); err != nil {
			r.log.Error("apply gateway status", "local_id", p.LocalID, "err", err)
		}
	}

	metrics.ReconcilePasses.Inc()
	return nil
}

func (r *Reconciler) apply(ctx context.Context, p domain.Payment, rec StatusRecord) error {
	if !rec.Status.Terminal() {
		// Still pending on both sides; bump updated_at only when the
		// gateway's own clock advanced, to avoid needless writes.
		if rec.UpdatedAt.After(p.UpdatedAt) {
			return r.repo.Touch(ctx, p.LocalID, rec.UpdatedAt)
		}
		return nil
	}

	now := r.now()
	payload, err := json.Marshal(domain.PaymentResolved{
		LocalID:        p.LocalID,
		ConfirmationID: p.ConfirmationID,
		Status:         rec.Status,
		Amount:         p.Amount,
		ResolvedAt:     now,
	})
	if err != nil {
		return err
	}

	applied, err := r.repo.ResolveTerminal(ctx, p.LocalID, rec.Status, domain.EventPaymentResolved, payload, now)
	if err != nil {
		return err
	}
	if applied {
		metrics.PaymentsResolved.WithLabelValues(string(rec.Status)).Inc()
		r.log.Info("payment resolved", "local_id", p.LocalID,
			"confirmation_id", p.ConfirmationID, "status", rec.Status)
		return nil
	}

	// The forward-only guard refused the write. Re-read to tell a benign
	// race (another pass already applied the same status) from a conflict.
	current, err := r.repo.FindByConfirmationID(ctx, p.ConfirmationID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() && current.Status != rec.Status {
		return r.reportAnomaly(ctx, current, rec.Status, now)
	}
	return nil
}

// reportAnomaly logs and emits the conflict; the stored terminal status is
// never corrected from gateway data.
func (r *Reconciler) reportAnomaly(ctx context.Context, p domain.Payment, gatewayStatus domain.Status, now time.Time) error {
	metrics.IntegrityAnomalies.Inc()
	r.log.Error("data integrity anomaly: gateway terminal status conflicts with stored terminal status",
		"local_id", p.LocalID, "confirmation_id", p.ConfirmationID,
		"stored", p.Status, "gateway", gatewayStatus)

	payload, err := json.Marshal(domain.IntegrityAnomaly{
		LocalID:        p.LocalID,
		ConfirmationID: p.ConfirmationID,
		StoredStatus:   p.Status,
		GatewayStatus:  gatewayStatus,
		DetectedAt:     now,
	})
	if err != nil {
		return err
	}
	return r.repo.RecordAnomaly(ctx, p.LocalID, domain.EventIntegrityAnomaly, payload, now)
}
