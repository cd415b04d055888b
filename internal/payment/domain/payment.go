package domain

import "time"

type Status string

const (
	// StatusSubmitting is the initial state: the record is durable locally
	// but the gateway has not accepted the payment yet.
	StatusSubmitting Status = "submitting"
	// StatusPending means the gateway accepted the submission and assigned
	// a confirmation id; final settlement is still unresolved.
	StatusPending Status = "pending"

	StatusSettled  Status = "settled"
	StatusReturned Status = "returned"
	StatusFailed   Status = "failed"
	// StatusSubmitFailed means every submission attempt was exhausted (or
	// the gateway rejected the payload). Eligible for resubmission.
	StatusSubmitFailed Status = "submit_failed"
)

// Terminal reports whether the gateway can no longer change this status.
// submit_failed is not terminal: a resubmission may still move it forward.
func (s Status) Terminal() bool {
	switch s {
	case StatusSettled, StatusReturned, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal forward move:
//
//	submitting    -> pending | submit_failed
//	submit_failed -> submitting            (resubmission)
//	pending       -> settled | returned | failed
//
// Terminal states never transition again.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusSubmitting:
		return to == StatusPending || to == StatusSubmitFailed
	case StatusSubmitFailed:
		return to == StatusSubmitting
	case StatusPending:
		return to.Terminal()
	}
	return false
}

type Payment struct {
	LocalID            string
	ConfirmationID     string // empty until the gateway accepts the submission
	SenderAccount      string
	ReceiverAccount    string
	Amount             float64
	Memo               string
	Status             Status
	SubmissionAttempts int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewPayment(localID, sender, receiver string, amount float64, memo string, now time.Time) Payment {
	return Payment{
		LocalID:         localID,
		SenderAccount:   sender,
		ReceiverAccount: receiver,
		Amount:          amount,
		Memo:            memo,
		Status:          StatusSubmitting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
