package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
	pg "github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/postgres"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/logging"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/outbox"
)

// Requires docker; skipped in -short runs.
func TestPostgresStoreAndOutboxRelay(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	defer env.Teardown(ctx)

	log := logging.New()
	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()

	repo := pg.NewRepository(log, pool)
	require.NoError(t, repo.InitSchema(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := domain.NewPayment("loc-int-1", "A", "111111112", 100.50, "rent", now)
	require.NoError(t, repo.Create(ctx, p))

	// confirmation_id is written exactly once.
	ok, err := repo.RecordConfirmation(ctx, p.LocalID, "conf-int-1", 1, now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.RecordConfirmation(ctx, p.LocalID, "conf-int-2", 2, now)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.FindByConfirmationID(ctx, "conf-int-1")
	require.NoError(t, err)
	assert.Equal(t, p.LocalID, got.LocalID)
	assert.Equal(t, domain.StatusPending, got.Status)

	payload, err := json.Marshal(domain.PaymentResolved{
		LocalID:        p.LocalID,
		ConfirmationID: "conf-int-1",
		Status:         domain.StatusSettled,
		Amount:         p.Amount,
		ResolvedAt:     now,
	})
	require.NoError(t, err)

	ok, err = repo.ResolveTerminal(ctx, p.LocalID, domain.StatusSettled, domain.EventPaymentResolved, payload, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Terminal status is final.
	ok, err = repo.ResolveTerminal(ctx, p.LocalID, domain.StatusReturned, domain.EventPaymentResolved, payload, now)
	require.NoError(t, err)
	assert.False(t, ok)

	locals, err := repo.ListNonTerminal(ctx)
	require.NoError(t, err)
	assert.Empty(t, locals)

	// The resolution event left through the same transaction; drain it to
	// kafka and read it back.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(env.Kafkas...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	store := pg.NewOutboxStore(log, pool)
	events, err := store.LockBatch(ctx, "test-relay", 10, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPaymentResolved, events[0].Type)

	dispatch := outbox.NewDispatcher(log, writer, "payment.events.test")
	require.NoError(t, dispatch.Dispatch(ctx, events[0]))
	require.NoError(t, store.MarkSent(ctx, []int64{events[0].ID}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: env.Kafkas,
		Topic:   "payment.events.test",
		GroupID: "integration-test",
	})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.FetchMessage(readCtx)
	require.NoError(t, err)
	assert.Equal(t, p.LocalID, string(msg.Key))

	var resolved domain.PaymentResolved
	require.NoError(t, json.Unmarshal(msg.Value, &resolved))
	assert.Equal(t, domain.StatusSettled, resolved.Status)

	// Nothing left to lock once marked sent.
	events, err = store.LockBatch(ctx, "test-relay", 10, 5*time.Second)
	require.NoError(t, err)
	assert.Empty(t, events)
}
