package domain

import "time"

const (
	EventPaymentResolved  = "PaymentResolved"
	EventIntegrityAnomaly = "IntegrityAnomalyDetected"
)

type PaymentResolved struct {
	LocalID        string    `json:"local_id"`
	ConfirmationID string    `json:"confirmation_id"`
	Status         Status    `json:"status"`
	Amount         float64   `json:"amount"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// IntegrityAnomaly is emitted when the gateway reports a terminal status
// that conflicts with a different terminal status already stored locally.
// The stored value is never overwritten.
type IntegrityAnomaly struct {
	LocalID        string    `json:"local_id"`
	ConfirmationID string    `json:"confirmation_id"`
	StoredStatus   Status    `json:"stored_status"`
	GatewayStatus  Status    `json:"gateway_status"`
	DetectedAt     time.Time `json:"detected_at"`
}
