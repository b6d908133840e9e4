package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"soulcert/internal/credential/cache"
	"soulcert/internal/credential/events"
	"soulcert/internal/credential/handler"
	credmetrics "soulcert/internal/credential/metrics"
	"soulcert/internal/credential/service"
	"soulcert/internal/credential/store"
	jwttoken "soulcert/internal/jwt_token"
	"soulcert/internal/platform/config"
	"soulcert/internal/platform/httpserver"
	"soulcert/internal/platform/kafka"
	"soulcert/internal/platform/logger"
	"soulcert/internal/platform/metrics"
	"soulcert/internal/platform/postgres"
	"soulcert/internal/platform/redis"
	"soulcert/pkg/platform/audit/publisher"
	auditmemory "soulcert/pkg/platform/audit/store/memory"
	"soulcert/pkg/platform/circuit"
	"soulcert/pkg/platform/httputil"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

type ledger interface {
	store.Tx
	healthChecker
}

// main wires the registry's dependencies and owns the server lifecycle.
// Postgres, Redis and Kafka are optional; without them the registry runs on
// the in-memory ledger and logs Issued events.
func main() {
	if err := run(); err != nil {
		slog.Error("soulcert exited", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	if cfg.UsesDevSigningKey() {
		log.Warn("using development JWT signing key; set JWT_SIGNING_KEY in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)
	registryMetrics := credmetrics.New(reg)

	checks := map[string]healthChecker{}

	ledgerStore, closeLedger, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger()
	checks["ledger"] = ledgerStore

	auditPublisher := publisher.NewPublisher(auditmemory.NewInMemoryStore(),
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registryMetrics),
		service.WithAuditPublisher(auditPublisher),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	switch {
	case redisClient == nil:
	case !store.IsDurable(ledgerStore):
		_ = redisClient.Close()
		log.Warn("REDIS_URL ignored: the record cache needs the postgres ledger")
	default:
		defer redisClient.Close()
		checks["redis"] = redisClient
		opts = append(opts, service.WithRecordCache(cache.NewRecordCache(redisClient.Client,
			cache.WithTTL(cfg.Redis.RecordCacheTTL),
			cache.WithMetrics(registryMetrics),
		)))
		log.Info("record cache enabled")
	}

	sinks := events.FanOut{events.NewLog(log)}
	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafkaClient.EnsureTopic(ctx, cfg.Kafka.IssuedTopic, 1, 1); err != nil {
			return err
		}
		checks["kafka"] = kafkaClient
		breaker := circuit.New("kafka-issued",
			circuit.WithFailureThreshold(5),
			circuit.WithCooldown(30*time.Second),
		)
		sinks = append(sinks, events.NewKafka(kafkaClient, cfg.Kafka.IssuedTopic,
			events.WithBreaker(breaker),
			events.WithKafkaLogger(log),
		))
		log.Info("kafka issued sink enabled", "topic", cfg.Kafka.IssuedTopic)
	}
	opts = append(opts, service.WithPublisher(sinks))

	registry := service.New(ledgerStore, opts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, jwttoken.DefaultAudience)
	h := handler.New(registry, log, httpMetrics, jwttoken.NewJWTServiceAdapter(jwtService))

	r := chi.NewRouter()
	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	h.Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting soulcert", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down soulcert")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openLedger(ctx context.Context, cfg config.Server, log *slog.Logger) (ledger, func(), error) {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		log.Warn("DATABASE_URL not set; using in-memory ledger")
		return store.NewInMemory(), func() {}, nil
	}
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("ledger schema applied")
	}
	return store.NewPostgres(db, store.WithTxTimeout(cfg.TxTimeout)), func() { _ = db.Close() }, nil
}

func healthHandler(checks map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{}
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
