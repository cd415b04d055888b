package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/metrics"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
)

const maxMemoLength = 255

// Service coordinates payment submission and serves status reads. The
// reconciliation loop owns all later transitions out of pending.
type Service struct {
	log     *slog.Logger
	repo    Repository
	gateway Gateway
	now     func() time.Time
}

func NewService(log *slog.Logger, repo Repository, gateway Gateway) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		gateway: gateway,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates the payment record first, then drives a single idempotent
// gateway submission. The record is durable before any external call, so a
// crash mid-submission still leaves an auditable submitting row.
func (s *Service) Submit(ctx context.Context, sub Submission) (domain.Payment, error) {
	if err := validate(sub); err != nil {
		return domain.Payment{}, err
	}

	p := domain.NewPayment(uuid.NewString(), sub.SenderAccount, sub.ReceiverAccount, sub.Amount, sub.Memo, s.now())
	if err := s.repo.Create(ctx, p); err != nil {
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	metrics.PaymentsSubmitted.Inc()

	return s.submitToGateway(ctx, p, sub, 0)
}

// Resubmit re-drives the gateway submission for a payment whose previous
// attempts exhausted. It reuses the existing local id and adds to the
// attempt count; it never creates a second record.
func (s *Service) Resubmit(ctx context.Context, localID string) (domain.Payment, error) {
	p, err := s.repo.Get(ctx, localID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status != domain.StatusSubmitFailed {
		return p, fmt.Errorf("%w: status is %s", ErrNotResubmittable, p.Status)
	}

	applied, err := s.repo.MarkSubmitting(ctx, localID, s.now())
	if err != nil {
		return domain.Payment{}, err
	}
	if !applied {
		// Lost the race to a concurrent resubmission; report current state.
		s.log.Warn("resubmit race lost", "local_id", localID)
		return s.repo.Get(ctx, localID)
	}
	p.Status = domain.StatusSubmitting

	sub := Submission{
		SenderAccount:   p.SenderAccount,
		ReceiverAccount: p.ReceiverAccount,
		Amount:          p.Amount,
		Memo:            p.Memo,
	}
	return s.submitToGateway(ctx, p, sub, p.SubmissionAttempts)
}

func (s *Service) submitToGateway(ctx context.Context, p domain.Payment, sub Submission, priorAttempts int) (domain.Payment, error) {
	res, err := s.gateway.Submit(ctx, sub)
	attempts := priorAttempts + res.Attempts

	if err != nil {
		if _, failErr := s.repo.MarkSubmitFailed(ctx, p.LocalID, attempts, s.now()); failErr != nil {
			s.log.Error("mark submit_failed", "local_id", p.LocalID, "err", failErr)
		}
		metrics.SubmitFailures.Inc()
		p.Status = domain.StatusSubmitFailed
		p.SubmissionAttempts = attempts

		if errors.Is(err, ErrPermanent) {
			s.log.Warn("gateway rejected submission", "local_id", p.LocalID, "err", err)
			return p, fmt.Errorf("%w: %v", ErrGatewayRejected, err)
		}
		s.log.Warn("gateway unreachable, submission attempts exhausted",
			"local_id", p.LocalID, "attempts", attempts, "err", err)
		return p, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	applied, err := s.repo.RecordConfirmation(ctx, p.LocalID, res.ConfirmationID, attempts, s.now())
	if err != nil {
		return domain.Payment{}, fmt.Errorf("record confirmation: %w", err)
	}
	if !applied {
		// Another writer confirmed this record first (e.g. a concurrent
		// resubmission). The stored confirmation id wins; ours is a
		// gateway-side duplicate we can only log.
		s.log.Error("confirmation write lost forward-only guard, possible duplicate gateway submission",
			"local_id", p.LocalID, "confirmation_id", res.ConfirmationID)
		return s.repo.Get(ctx, p.LocalID)
	}

	s.log.Info("payment submitted", "local_id", p.LocalID,
		"confirmation_id", res.ConfirmationID, "attempts", attempts)

	p.ConfirmationID = res.ConfirmationID
	p.Status = domain.StatusPending
	p.SubmissionAttempts = attempts
	p.UpdatedAt = s.now()
	return p, nil
}

// GetStatus serves reads from the local store only; staleness is bounded by
// the reconciliation interval. A nil refresher or an in-flight pass leaves
// the read on current state rather than blocking on the gateway.
func (s *Service) GetStatus(ctx context.Context, localID string, refresher Refresher, fresh bool) (domain.Payment, error) {
	if fresh && refresher != nil {
		if err := refresher.TriggerNow(ctx); err != nil && !errors.Is(err, ErrPassInFlight) {
			s.log.Warn("on-demand reconciliation failed, serving stored state",
				"local_id", localID, "err", err)
		}
	}
	return s.repo.Get(ctx, localID)
}

// Refresher runs one reconciliation pass on demand.
type Refresher interface {
	TriggerNow(ctx context.Context) error
}

func validate(sub Submission) error {
	if strings.TrimSpace(sub.SenderAccount) == "" {
		return &ValidationError{Field: "sender_account", Reason: "must not be empty"}
	}
	if strings.TrimSpace(sub.ReceiverAccount) == "" {
		return &ValidationError{Field: "receiver_account", Reason: "must not be empty"}
	}
	if sub.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if len(sub.Memo) > maxMemoLength {
		return &ValidationError{Field: "memo", Reason: fmt.Sprintf("must be at most %d characters", maxMemoLength)}
	}
	return nil
}
