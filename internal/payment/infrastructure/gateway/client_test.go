package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/gateway"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/logging"
)

func fastRetry() gateway.Option {
	return gateway.WithRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestSubmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/submit", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "A", body["sender_account"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"confirmation_id": "conf-1",
			"status":          "pending",
			"created_at":      time.Now().UTC(),
		})
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL, fastRetry())
	res, err := c.Submit(context.Background(), application.Submission{
		SenderAccount:   "A",
		ReceiverAccount: "111111112",
		Amount:          100.50,
	})
	require.NoError(t, err)
	assert.Equal(t, "conf-1", res.ConfirmationID)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestSubmitRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"confirmation_id": "conf-2",
			"status":          "pending",
			"created_at":      time.Now().UTC(),
		})
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL, fastRetry())
	res, err := c.Submit(context.Background(), application.Submission{SenderAccount: "A", ReceiverAccount: "B", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitExhaustsTransientBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL, fastRetry())
	res, err := c.Submit(context.Background(), application.Submission{SenderAccount: "A", ReceiverAccount: "B", Amount: 1})
	assert.ErrorIs(t, err, application.ErrTransient)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitDoesNotRetryPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL, fastRetry())
	_, err := c.Submit(context.Background(), application.Submission{SenderAccount: "A", ReceiverAccount: "B", Amount: 1})
	assert.ErrorIs(t, err, application.ErrPermanent)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestSubmitRejectsUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"confirmation_id": "conf-3",
			"status":          "mystery",
			"created_at":      time.Now().UTC(),
		})
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL, fastRetry())
	_, err := c.Submit(context.Background(), application.Submission{SenderAccount: "A", ReceiverAccount: "B", Amount: 1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestListStatusDropsUnknownStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"confirmation_id": "conf-1", "status": "settled", "created_at": time.Now().UTC(), "updated_at": time.Now().UTC()},
			{"confirmation_id": "conf-2", "status": "garbled", "created_at": time.Now().UTC(), "updated_at": time.Now().UTC()},
			{"confirmation_id": "conf-3", "status": "pending", "created_at": time.Now().UTC(), "updated_at": time.Now().UTC()},
		})
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL)
	records, err := c.ListStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "conf-1", records[0].ConfirmationID)
	assert.Equal(t, domain.StatusSettled, records[0].Status)
	assert.Equal(t, "conf-3", records[1].ConfirmationID)
}

func TestListStatusErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := gateway.NewClient(logging.New(), srv.URL)
	_, err := c.ListStatus(context.Background())
	assert.ErrorIs(t, err, application.ErrTransient)
}

func TestSubmitNetworkErrorIsTransient(t *testing.T) {
	// Point at a closed server.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := gateway.NewClient(logging.New(), url, fastRetry())
	_, err := c.Submit(context.Background(), application.Submission{SenderAccount: "A", ReceiverAccount: "B", Amount: 1})
	assert.ErrorIs(t, err, application.ErrTransient)
}
