package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
)

func TestStatusTerminal(t *testing.T) {
	assert.True(t, domain.StatusSettled.Terminal())
	assert.True(t, domain.StatusReturned.Terminal())
	assert.True(t, domain.StatusFailed.Terminal())

	assert.False(t, domain.StatusSubmitting.Terminal())
	assert.False(t, domain.StatusPending.Terminal())
	assert.False(t, domain.StatusSubmitFailed.Terminal())
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to domain.Status }{
		{domain.StatusSubmitting, domain.StatusPending},
		{domain.StatusSubmitting, domain.StatusSubmitFailed},
		{domain.StatusSubmitFailed, domain.StatusSubmitting},
		{domain.StatusPending, domain.StatusSettled},
		{domain.StatusPending, domain.StatusReturned},
		{domain.StatusPending, domain.StatusFailed},
	}
	for _, tc := range allowed {
		assert.True(t, domain.CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	refused := []struct{ from, to domain.Status }{
		{domain.StatusSubmitting, domain.StatusSettled},
		{domain.StatusSubmitFailed, domain.StatusPending},
		{domain.StatusPending, domain.StatusSubmitting},
		{domain.StatusSettled, domain.StatusReturned},
		{domain.StatusSettled, domain.StatusPending},
		{domain.StatusReturned, domain.StatusFailed},
		{domain.StatusFailed, domain.StatusSettled},
	}
	for _, tc := range refused {
		assert.False(t, domain.CanTransition(tc.from, tc.to), "%s -> %s should be refused", tc.from, tc.to)
	}
}

func TestNewPayment(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := domain.NewPayment("loc-1", "A", "111111112", 100.50, "rent", now)

	assert.Equal(t, domain.StatusSubmitting, p.Status)
	assert.Empty(t, p.ConfirmationID)
	assert.Zero(t, p.SubmissionAttempts)
	assert.Equal(t, now, p.CreatedAt)
	assert.Equal(t, now, p.UpdatedAt)
}
