// gateway-sim is a local stand-in for the external payment gateway, for
// development and end-to-end testing of the tracker. Payments resolve a
// fixed delay after submission, by the last digit of the receiver account:
// 0-3 settled, 4-6 returned, 7-9 failed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/logging"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/shutdown"
)

type record struct {
	ConfirmationID  string
	ReceiverAccount string
	Status          domain.Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r *record) finalStatus() domain.Status {
	last := r.ReceiverAccount[len(r.ReceiverAccount)-1]
	digit := 0
	if last >= '0' && last <= '9' {
		digit = int(last - '0')
	}
	switch {
	case digit <= 3:
		return domain.StatusSettled
	case digit <= 6:
		return domain.StatusReturned
	default:
		return domain.StatusFailed
	}
}

type store struct {
	mu      sync.Mutex
	records map[string]*record
	delay   time.Duration
	now     func() time.Time
}

func (s *store) submit(receiver string) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r := &record{
		ConfirmationID:  uuid.NewString(),
		ReceiverAccount: receiver,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.records[r.ConfirmationID] = r
	return r
}

// list resolves every pending record past the delay, then returns all
// records oldest first.
func (s *store) list() []record {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]record, 0, len(s.records))
	for _, r := range s.records {
		if r.Status == domain.StatusPending && now.Sub(r.CreatedAt) >= s.delay {
			r.Status = r.finalStatus()
			r.UpdatedAt = now
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type submitReq struct {
	SenderAccount   string  `json:"sender_account"`
	ReceiverAccount string  `json:"receiver_account"`
	Amount          float64 `json:"amount"`
	Memo            string  `json:"memo,omitempty"`
}

func main() {
	log := logging.New()
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	port := "8001"
	if v := os.Getenv("GATEWAY_SIM_PORT"); v != "" {
		port = v
	}
	delay := 10 * time.Second
	if v := os.Getenv("PAYMENT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			delay = d
		}
	}

	st := &store{
		records: make(map[string]*record),
		delay:   delay,
		now:     func() time.Time { return time.Now().UTC() },
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Post("/submit", func(w http.ResponseWriter, req *http.Request) {
		var body submitReq
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		if body.SenderAccount == "" || body.ReceiverAccount == "" || body.Amount <= 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid submission"})
			return
		}
		rec := st.submit(body.ReceiverAccount)
		writeJSON(w, http.StatusOK, map[string]any{
			"confirmation_id": rec.ConfirmationID,
			"status":          rec.Status,
			"created_at":      rec.CreatedAt,
		})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		records := st.list()
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, map[string]any{
				"confirmation_id": rec.ConfirmationID,
				"status":          rec.Status,
				"created_at":      rec.CreatedAt,
				"updated_at":      rec.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		log.Info("gateway simulator listening", "port", port, "delay", delay)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway simulator failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
