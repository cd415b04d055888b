package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/idempotency"
)

type Handler struct {
	log        *slog.Logger
	service    *application.Service
	reconciler application.Refresher
	idem       *idempotency.Store // nil disables Idempotency-Key support
	tracer     trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, reconciler application.Refresher, idem *idempotency.Store) *Handler {
	return &Handler{
		log:        log,
		service:    service,
		reconciler: reconciler,
		idem:       idem,
		tracer:     otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/payments", h.submitPayment)
	r.Get("/payments/{id}", h.getPayment)
	r.Post("/payments/{id}/resubmit", h.resubmitPayment)
	r.Get("/healthz", h.health)
	return r
}

type submitPaymentReq struct {
	SenderAccount   string  `json:"sender_account"`
	ReceiverAccount string  `json:"receiver_account"`
	Amount          float64 `json:"amount"`
	Memo            string  `json:"memo,omitempty"`
}

type paymentResponse struct {
	LocalID            string    `json:"local_id"`
	ConfirmationID     string    `json:"confirmation_id,omitempty"`
	SenderAccount      string    `json:"sender_account"`
	ReceiverAccount    string    `json:"receiver_account"`
	Amount             float64   `json:"amount"`
	Memo               string    `json:"memo,omitempty"`
	Status             string    `json:"status"`
	SubmissionAttempts int       `json:"submission_attempts"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		LocalID:            p.LocalID,
		ConfirmationID:     p.ConfirmationID,
		SenderAccount:      p.SenderAccount,
		ReceiverAccount:    p.ReceiverAccount,
		Amount:             p.Amount,
		Memo:               p.Memo,
		Status:             string(p.Status),
		SubmissionAttempts: p.SubmissionAttempts,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitPayment")
	defer span.End()

	var req submitPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", false)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		localID, isNew, err := h.idem.Claim(ctx, idemKey)
		if err != nil {
			h.log.Error("idempotency claim failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable", true)
			return
		}
		if !isNew {
			if localID == "" {
				writeError(w, http.StatusConflict, "request with this idempotency key is in flight", true)
				return
			}
			p, err := h.service.GetStatus(ctx, localID, nil, false)
			if err != nil {
				h.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toResponse(p))
			return
		}
	}

	p, err := h.service.Submit(ctx, application.Submission{
		SenderAccount:   req.SenderAccount,
		ReceiverAccount: req.ReceiverAccount,
		Amount:          req.Amount,
		Memo:            req.Memo,
	})
	if err != nil && p.LocalID == "" {
		// Nothing was created; free the key so the client can retry it.
		if idemKey != "" && h.idem != nil {
			_ = h.idem.Release(ctx, idemKey)
		}
		h.writeServiceError(w, err)
		return
	}
	if idemKey != "" && h.idem != nil {
		if bindErr := h.idem.Bind(ctx, idemKey, p.LocalID); bindErr != nil {
			h.log.Error("idempotency bind failed", "local_id", p.LocalID, "err", bindErr)
		}
	}
	if err != nil {
		// Record exists in submit_failed; report the failure with the body
		// so the caller has the local id to resubmit with.
		status := http.StatusBadGateway
		retryable := true
		if errors.Is(err, application.ErrGatewayRejected) {
			status = http.StatusUnprocessableEntity
			retryable = false
		}
		writeJSON(w, status, map[string]any{
			"error":     err.Error(),
			"retryable": retryable,
			"payment":   toResponse(p),
		})
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetPayment")
	defer span.End()

	fresh := r.URL.Query().Get("fresh") == "1" || r.URL.Query().Get("fresh") == "true"
	p, err := h.service.GetStatus(ctx, chi.URLParam(r, "id"), h.reconciler, fresh)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) resubmitPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ResubmitPayment")
	defer span.End()

	p, err := h.service.Resubmit(ctx, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, application.ErrNotResubmittable):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   err.Error(),
				"payment": toResponse(p),
			})
		case errors.Is(err, application.ErrGatewayUnavailable), errors.Is(err, application.ErrGatewayRejected):
			status := http.StatusBadGateway
			retryable := true
			if errors.Is(err, application.ErrGatewayRejected) {
				status = http.StatusUnprocessableEntity
				retryable = false
			}
			writeJSON(w, status, map[string]any{
				"error":     err.Error(),
				"retryable": retryable,
				"payment":   toResponse(p),
			})
		default:
			h.writeServiceError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *application.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), false)
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found", false)
	case errors.Is(err, application.ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, err.Error(), true)
	case errors.Is(err, application.ErrGatewayRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), false)
	default:
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error", false)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, map[string]any{"error": msg, "retryable": retryable})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
