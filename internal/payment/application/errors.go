package application

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the local id is unknown to the record store.
	ErrNotFound = errors.New("payment not found")

	// ErrTransient classifies a gateway failure the caller may retry:
	// network error, timeout, or a 5xx response.
	ErrTransient = errors.New("transient gateway error")

	// ErrPermanent classifies a gateway failure that must not be retried:
	// the gateway rejected the request with a 4xx response.
	ErrPermanent = errors.New("permanent gateway error")

	// ErrGatewayUnavailable means every submission attempt failed on a
	// transient error. The caller may retry the whole request.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrGatewayRejected means the gateway rejected the payload outright.
	// Retrying the same request will not succeed.
	ErrGatewayRejected = errors.New("gateway rejected submission")

	// ErrNotResubmittable means Resubmit was called on a payment that is
	// not in submit_failed state.
	ErrNotResubmittable = errors.New("payment is not eligible for resubmission")

	// ErrPassInFlight means a reconciliation pass is already running; the
	// trigger was skipped, not queued.
	ErrPassInFlight = errors.New("reconciliation pass already in flight")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
