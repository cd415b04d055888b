package application

import (
	"context"
	"time"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
)

// Repository is the payment record store. Every mutation is atomic per
// record; the boolean results report whether the guarded transition applied
// (false means the record was not in a state the transition is legal from).
type Repository interface {
	Create(ctx context.Context, p domain.Payment) error
	Get(ctx context.Context, localID string) (domain.Payment, error)
	FindByConfirmationID(ctx context.Context, confirmationID string) (domain.Payment, error)
	ListNonTerminal(ctx context.Context) ([]domain.Payment, error)

	// RecordConfirmation is the only write path for confirmation_id. It
	// moves submitting -> pending, applied only while the record has no
	// confirmation id yet.
	RecordConfirmation(ctx context.Context, localID, confirmationID string, attempts int, now time.Time) (bool, error)

	// MarkSubmitting re-arms a submit_failed record for resubmission.
	MarkSubmitting(ctx context.Context, localID string, now time.Time) (bool, error)

	MarkSubmitFailed(ctx context.Context, localID string, attempts int, now time.Time) (bool, error)

	// ResolveTerminal moves pending to one terminal status and records the
	// given event in the outbox within the same atomic scope.
	ResolveTerminal(ctx context.Context, localID string, to domain.Status, eventType string, payload []byte, now time.Time) (bool, error)

	// RecordAnomaly appends an integrity anomaly event to the outbox
	// without touching the payment row.
	RecordAnomaly(ctx context.Context, localID, eventType string, payload []byte, now time.Time) error

	// Touch bumps updated_at only.
	Touch(ctx context.Context, localID string, now time.Time) error
}

type Submission struct {
	SenderAccount   string
	ReceiverAccount string
	Amount          float64
	Memo            string
}

type SubmitResult struct {
	ConfirmationID string
	Status         domain.Status
	CreatedAt      time.Time
	// Attempts is the number of HTTP submit calls made, including failures.
	Attempts int
}

type StatusRecord struct {
	ConfirmationID string
	Status         domain.Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Gateway wraps the two external operations of the payment gateway.
// Submit retries transient failures internally up to its attempt budget.
type Gateway interface {
	Submit(ctx context.Context, sub Submission) (SubmitResult, error)
	ListStatus(ctx context.Context) ([]StatusRecord, error)
}
