package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/config"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/gateway"
	paymenthttp "github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/http"
	pg "github.com/rsharma5190/Payment-Tracking-Service/internal/payment/infrastructure/postgres"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/idempotency"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/logging"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/outbox"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/shutdown"
	"github.com/rsharma5190/Payment-Tracking-Service/pkg/tracing"
)

func main() {
	log := logging.New()
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg := config.Load()

	tp, err := tracing.Init(ctx, "payment-tracker", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := pg.NewRepository(log, pool)
	if err := repo.InitSchema(ctx); err != nil {
		log.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	redisDB := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	idem := idempotency.NewStore(redisDB, cfg.IdempotencyTTL)

	gw := gateway.NewClient(log, cfg.GatewayURL,
		gateway.WithTimeout(cfg.GatewayTimeout),
		gateway.WithRetry(cfg.GatewayMaxAttempts, 200*time.Millisecond, 2*time.Second),
	)

	svc := application.NewService(log, repo, gw)
	reconciler := application.NewReconciler(log, repo, gw, cfg.ReconcileInterval)
	go func() {
		if err := reconciler.Run(ctx); err != nil {
			log.Error("reconciler stopped", "err", err)
			cancel()
		}
	}()

	// Status-change events leave through the transactional outbox.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaAddr),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer, cfg.EventsTopic)
	relay := outbox.NewRelay(log, pg.NewOutboxStore(log, pool), dispatch, "payment-tracker-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("outbox relay stopped", "err", err)
		}
	}()

	handler := paymenthttp.NewHandler(log, svc, reconciler, idem)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Routes())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}
	go func() {
		log.Info("payment tracker listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("payment tracker shutdown")
}
