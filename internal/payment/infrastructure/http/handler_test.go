package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
	paymenthttp "github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/http"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/memory"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/logging"
)

type scriptedGateway struct {
	err  error
	list []application.StatusRecord
}

func (g *scriptedGateway) Submit(context.Context, application.Submission) (application.SubmitResult, error) {
	if g.err != nil {
		return application.SubmitResult{Attempts: 3}, g.err
	}
	return application.SubmitResult{
		ConfirmationID: "conf-http",
		Status:         domain.StatusPending,
		CreatedAt:      time.Now().UTC(),
		Attempts:       1,
	}, nil
}

func (g *scriptedGateway) ListStatus(context.Context) ([]application.StatusRecord, error) {
	return g.list, nil
}

func setup(gw application.Gateway) (http.Handler, *memory.Repository) {
	repo := memory.NewRepository()
	log := logging.New()
	svc := application.NewService(log, repo, gw)
	return paymenthttp.NewHandler(log, svc, nil, nil).Routes(), repo
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSubmitPaymentCreated(t *testing.T) {
	h, _ := setup(&scriptedGateway{})

	w := postJSON(t, h, "/payments", map[string]any{
		"sender_account":   "A",
		"receiver_account": "111111112",
		"amount":           100.50,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "conf-http", resp["confirmation_id"])
	assert.NotEmpty(t, resp["local_id"])
}

func TestSubmitPaymentValidation(t *testing.T) {
	h, _ := setup(&scriptedGateway{})

	w := postJSON(t, h, "/payments", map[string]any{
		"sender_account":   "A",
		"receiver_account": "B",
		"amount":           -1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount")
}

func TestSubmitPaymentGatewayDown(t *testing.T) {
	gw := &scriptedGateway{err: fmt.Errorf("%w: connection refused", application.ErrTransient)}
	h, repo := setup(gw)

	w := postJSON(t, h, "/payments", map[string]any{
		"sender_account":   "A",
		"receiver_account": "111111117",
		"amount":           10,
	})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Retryable bool `json:"retryable"`
		Payment   struct {
			LocalID string `json:"local_id"`
			Status  string `json:"status"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Retryable)
	assert.Equal(t, "submit_failed", resp.Payment.Status)

	// The record is still durable and queryable.
	p, err := repo.Get(context.Background(), resp.Payment.LocalID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitFailed, p.Status)
}

func TestGetPayment(t *testing.T) {
	h, repo := setup(&scriptedGateway{})
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), domain.NewPayment("loc-7", "A", "B", 5, "", now)))

	req := httptest.NewRequest(http.MethodGet, "/payments/loc-7", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"loc-7"`)
}

func TestGetPaymentNotFound(t *testing.T) {
	h, _ := setup(&scriptedGateway{})

	req := httptest.NewRequest(http.MethodGet, "/payments/nope", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResubmitConflictWhenNotFailed(t *testing.T) {
	h, _ := setup(&scriptedGateway{})

	created := postJSON(t, h, "/payments", map[string]any{
		"sender_account":   "A",
		"receiver_account": "111111112",
		"amount":           10,
	})
	require.Equal(t, http.StatusCreated, created.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))

	w := postJSON(t, h, "/payments/"+resp["local_id"].(string)+"/resubmit", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHealthz(t *testing.T) {
	h, _ := setup(&scriptedGateway{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
