package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
)

// Repository persists payments in postgres. Forward-only status transitions
// are enforced with status-guarded UPDATEs, so concurrent writers to the
// same record race on rows-affected instead of a lock held in Go.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			local_id            VARCHAR(64) PRIMARY KEY,
			confirmation_id     VARCHAR(64) UNIQUE,
			sender_account      VARCHAR(64) NOT NULL,
			receiver_account    VARCHAR(64) NOT NULL,
			amount              DOUBLE PRECISION NOT NULL,
			memo                VARCHAR(255),
			status              VARCHAR(32) NOT NULL,
			submission_attempts INT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id          BIGSERIAL PRIMARY KEY,
			aggregate_type VARCHAR(32) NOT NULL,
			aggregate_id VARCHAR(64) NOT NULL,
			type        VARCHAR(64) NOT NULL,
			payload     JSONB NOT NULL,
			status      VARCHAR(16) NOT NULL DEFAULT 'pending',
			relay_id    VARCHAR(64),
			lease_until TIMESTAMPTZ,
			retry_count INT NOT NULL DEFAULT 0,
			last_error  TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status)`,
	}
	for _, q := range queries {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

const paymentColumns = `local_id, confirmation_id, sender_account, receiver_account, amount, memo, status, submission_attempts, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, p domain.Payment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, NULLIF($6,''), $7, $8, $9, $10)`,
		p.LocalID, p.ConfirmationID, p.SenderAccount, p.ReceiverAccount,
		p.Amount, p.Memo, p.Status, p.SubmissionAttempts, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, localID string) (domain.Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE local_id=$1`, localID)
}

func (r *Repository) FindByConfirmationID(ctx context.Context, confirmationID string) (domain.Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE confirmation_id=$1`, confirmationID)
}

func (r *Repository) one(ctx context.Context, query, arg string) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, application.ErrNotFound
	}
	return p, err
}

func (r *Repository) ListNonTerminal(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status NOT IN ($1, $2, $3) ORDER BY created_at`,
		domain.StatusSettled, domain.StatusReturned, domain.StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *Repository) RecordConfirmation(ctx context.Context, localID, confirmationID string, attempts int, now time.Time) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE payments
		SET confirmation_id=$2, status=$3, submission_attempts=$4, updated_at=$5
		WHERE local_id=$1 AND confirmation_id IS NULL AND status=$6`,
		localID, confirmationID, domain.StatusPending, attempts, now, domain.StatusSubmitting)
	if err != nil {
		return false, err
	}
	return r.applied(ct.RowsAffected(), localID, "record confirmation"), nil
}

func (r *Repository) MarkSubmitting(ctx context.Context, localID string, now time.Time) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE payments SET status=$2, updated_at=$3
		WHERE local_id=$1 AND status=$4`,
		localID, domain.StatusSubmitting, now, domain.StatusSubmitFailed)
	if err != nil {
		return false, err
	}
	return r.applied(ct.RowsAffected(), localID, "mark submitting"), nil
}

func (r *Repository) MarkSubmitFailed(ctx context.Context, localID string, attempts int, now time.Time) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE payments
		SET status=$2, submission_attempts=$3, updated_at=$4
		WHERE local_id=$1 AND status=$5`,
		localID, domain.StatusSubmitFailed, attempts, now, domain.StatusSubmitting)
	if err != nil {
		return false, err
	}
	return r.applied(ct.RowsAffected(), localID, "mark submit_failed"), nil
}

// ResolveTerminal applies a pending -> terminal transition and records the
// outbox event in the same transaction, so the event exists exactly when
// the transition does.
func (r *Repository) ResolveTerminal(ctx context.Context, localID string, to domain.Status, eventType string, payload []byte, now time.Time) (bool, error) {
	if !to.Terminal() {
		return false, errors.New("resolve terminal: target status is not terminal")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE payments SET status=$2, updated_at=$3
		WHERE local_id=$1 AND status=$4`,
		localID, to, now, domain.StatusPending)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		r.log.Warn("illegal transition refused", "local_id", localID, "op", "resolve terminal", "to", to)
		return false, tx.Rollback(ctx)
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, status)
		VALUES ('payment', $1, $2, $3, 'pending')`,
		localID, eventType, payload)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) RecordAnomaly(ctx context.Context, localID, eventType string, payload []byte, now time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, status, created_at)
		VALUES ('payment', $1, $2, $3, 'pending', $4)`,
		localID, eventType, payload, now)
	return err
}

func (r *Repository) Touch(ctx context.Context, localID string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE payments SET updated_at=$2 WHERE local_id=$1 AND updated_at < $2`, localID, now)
	return err
}

func (r *Repository) applied(rows int64, localID, op string) bool {
	if rows == 0 {
		r.log.Warn("illegal transition refused", "local_id", localID, "op", op)
		return false
	}
	return true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var p domain.Payment
	var confirmationID, memo *string
	err := row.Scan(&p.LocalID, &confirmationID, &p.SenderAccount, &p.ReceiverAccount,
		&p.Amount, &memo, &p.Status, &p.SubmissionAttempts, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	if confirmationID != nil {
		p.ConfirmationID = *confirmationID
	}
	if memo != nil {
		p.Memo = *memo
	}
	return p, nil
}
