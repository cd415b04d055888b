package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/outbox"
)

// Repository is the in-memory record store used by tests and local dev.
// It enforces the same forward-only transition guards as the postgres
// adapter, serialized by one mutex.
type Repository struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	events   []outbox.Event
	nextID   int64
	writes   int
}

func NewRepository() *Repository {
	return &Repository{payments: make(map[string]domain.Payment)}
}

func (r *Repository) Create(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.LocalID] = p
	r.writes++
	return nil
}

func (r *Repository) Get(_ context.Context, localID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[localID]
	if !ok {
		return domain.Payment{}, application.ErrNotFound
	}
	return p, nil
}

func (r *Repository) FindByConfirmationID(_ context.Context, confirmationID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ConfirmationID != "" && p.ConfirmationID == confirmationID {
			return p, nil
		}
	}
	return domain.Payment{}, application.ErrNotFound
}

func (r *Repository) ListNonTerminal(_ context.Context) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if !p.Status.Terminal() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) RecordConfirmation(_ context.Context, localID, confirmationID string, attempts int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[localID]
	if !ok {
		return false, application.ErrNotFound
	}
	if p.ConfirmationID != "" || !domain.CanTransition(p.Status, domain.StatusPending) {
		return false, nil
	}
	p.ConfirmationID = confirmationID
	p.Status = domain.StatusPending
	p.SubmissionAttempts = attempts
	p.UpdatedAt = now
	r.payments[localID] = p
	r.writes++
	return true, nil
}

func (r *Repository) MarkSubmitting(_ context.Context, localID string, now time.Time) (bool, error) {
	return r.cas(localID, domain.StatusSubmitFailed, domain.StatusSubmitting, -1, now)
}

func (r *Repository) MarkSubmitFailed(_ context.Context, localID string, attempts int, now time.Time) (bool, error) {
	return r.cas(localID, domain.StatusSubmitting, domain.StatusSubmitFailed, attempts, now)
}

func (r *Repository) cas(localID string, from, to domain.Status, attempts int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[localID]
	if !ok {
		return false, application.ErrNotFound
	}
	if p.Status != from || !domain.CanTransition(from, to) {
		return false, nil
	}
	p.Status = to
	if attempts >= 0 {
		p.SubmissionAttempts = attempts
	}
	p.UpdatedAt = now
	r.payments[localID] = p
	r.writes++
	return true, nil
}

func (r *Repository) ResolveTerminal(_ context.Context, localID string, to domain.Status, eventType string, payload []byte, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[localID]
	if !ok {
		return false, application.ErrNotFound
	}
	if !to.Terminal() || !domain.CanTransition(p.Status, to) {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = now
	r.payments[localID] = p
	r.appendEvent(localID, eventType, payload, now)
	r.writes++
	return true, nil
}

func (r *Repository) RecordAnomaly(_ context.Context, localID, eventType string, payload []byte, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendEvent(localID, eventType, payload, now)
	r.writes++
	return nil
}

func (r *Repository) Touch(_ context.Context, localID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[localID]
	if !ok {
		return application.ErrNotFound
	}
	if !now.After(p.UpdatedAt) {
		return nil
	}
	p.UpdatedAt = now
	r.payments[localID] = p
	r.writes++
	return nil
}

func (r *Repository) appendEvent(localID, eventType string, payload []byte, now time.Time) {
	r.nextID++
	r.events = append(r.events, outbox.Event{
		ID:            r.nextID,
		AggregateType: "payment",
		AggregateID:   localID,
		Type:          eventType,
		Payload:       payload,
		CreatedAt:     now,
		Status:        outbox.StatusPending,
	})
}

// Events returns a copy of the recorded outbox events, oldest first.
func (r *Repository) Events() []outbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbox.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Writes reports how many mutations were applied, for tests asserting that
// an idempotent pass produced no extra writes.
func (r *Repository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}
