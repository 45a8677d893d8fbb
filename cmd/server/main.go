package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	audithandler "facegate/internal/audit/handler"
	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/embedding"
	"facegate/internal/biometric/liveness"
	"facegate/internal/cascade"
	"facegate/internal/cascade/backup"
	cascadehandler "facegate/internal/cascade/handler"
	cascademetrics "facegate/internal/cascade/metrics"
	"facegate/internal/enrollment"
	enrollmenthandler "facegate/internal/enrollment/handler"
	enrollmentstore "facegate/internal/enrollment/store"
	"facegate/internal/perception"
	"facegate/internal/platform/config"
	"facegate/internal/platform/httpserver"
	"facegate/internal/platform/logger"
	platformmetrics "facegate/internal/platform/metrics"
	"facegate/internal/platform/postgres"
	"facegate/internal/platform/redis"
	"facegate/internal/ratelimit"
	ratelimitmetrics "facegate/internal/ratelimit/metrics"
	ratelimitstore "facegate/internal/ratelimit/store"
	"facegate/internal/risk"
	riskhandler "facegate/internal/risk/handler"
	riskmetrics "facegate/internal/risk/metrics"
	riskstore "facegate/internal/risk/store"
	"facegate/internal/routing"
	routinghandler "facegate/internal/routing/handler"
	"facegate/internal/session"
	sessionhandler "facegate/internal/session/handler"
	sessionstore "facegate/internal/session/store"
	httptransport "facegate/internal/transport/http"
	"facegate/pkg/platform/audit"
	"facegate/pkg/platform/audit/publishers/kafka"
	auditmemory "facegate/pkg/platform/audit/store/memory"
	auditpostgres "facegate/pkg/platform/audit/store/postgres"
	"facegate/pkg/platform/audit/worker"
	"facegate/pkg/platform/circuit"
	"facegate/pkg/platform/middleware/admin"
	"facegate/pkg/platform/middleware/auth"
)

// main wires infrastructure, domain services and the HTTP router, then runs
// until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("facegate stopped with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db    *postgres.DB
	redis *redis.Client
}

func (i infra) close(log *slog.Logger) {
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("failed to close postgres", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	deps := infra{db: db, redis: rdb}
	defer deps.close(log)

	g, gctx := errgroup.WithContext(ctx)

	chain, err := buildAuditChain(ctx, g, gctx, cfg, deps, log)
	if err != nil {
		return err
	}
	if cfg.Audit.VerifyOnStartup {
		report, err := chain.VerifyIntegrity(ctx, audit.Range{})
		if err != nil {
			return fmt.Errorf("verify audit chain: %w", err)
		}
		if err := report.Err(); err != nil {
			log.Error("audit chain integrity check failed",
				"checked", report.Checked,
				"invalid", len(report.InvalidEventIDs),
				"first_invalid", report.FirstInvalid,
			)
			return err
		}
		log.Info("audit chain verified", "checked", report.Checked)
	}

	var sessionStore session.Store = sessionstore.NewInMemoryStore()
	if rdb != nil {
		sessionStore = sessionstore.NewRedisStore(rdb.Client,
			sessionstore.WithTTL(cfg.Redis.SessionTTL),
			sessionstore.WithFingerprintRetention(cfg.Redis.FingerprintRetention),
		)
	}
	sessions, err := session.NewService(sessionStore, session.WithLogger(log))
	if err != nil {
		return err
	}

	matcher, err := embedding.NewMatcher(cfg.Embedding)
	if err != nil {
		return err
	}
	live, err := liveness.New(cfg.Liveness)
	if err != nil {
		return err
	}
	spoof, err := antispoof.New(cfg.AntiSpoof)
	if err != nil {
		return err
	}

	var enrollStore enrollment.Store = enrollmentstore.NewInMemoryStore()
	var alertStore risk.Store = riskstore.NewInMemoryStore()
	if db != nil {
		pgEnroll := enrollmentstore.NewPostgresStore(db.SQL)
		if err := pgEnroll.EnsureSchema(ctx); err != nil {
			return err
		}
		pgAlerts := riskstore.NewPostgresStore(db.SQL)
		if err := pgAlerts.EnsureSchema(ctx); err != nil {
			return err
		}
		enrollStore, alertStore = pgEnroll, pgAlerts
	}
	enroller, err := enrollment.NewService(enrollStore, matcher, live, spoof, chain,
		enrollment.WithLogger(log),
		enrollment.WithMaxSamples(cfg.Enrollment.MaxSamples),
	)
	if err != nil {
		return err
	}

	readiness := map[string]httptransport.HealthCheck{}
	if db != nil {
		readiness["postgres"] = db.Health
	}
	if rdb != nil {
		readiness["redis"] = rdb.Health
	}

	cascadeOpts := []cascade.Option{
		cascade.WithLogger(log),
		cascade.WithMetrics(cascademetrics.New()),
		cascade.WithCandidateSource(enroller),
		cascade.WithSubjectDirectory(enroller),
		cascade.WithSessions(sessionStore),
	}
	if cfg.Backup.URL != "" {
		breaker := circuit.New("backup-provider",
			circuit.WithFailureThreshold(cfg.Backup.FailureThreshold),
			circuit.WithCooldown(cfg.Backup.Cooldown),
		)
		client, err := backup.New(cfg.Backup.URL, backup.WithBreaker(breaker), backup.WithLogger(log))
		if err != nil {
			return err
		}
		cascadeOpts = append(cascadeOpts, cascade.WithBackup(client, enroller))
		readiness["backup"] = client.HealthCheck
	} else {
		log.Warn("no backup provider configured; borderline matches will be rejected")
	}
	orchestrator, err := cascade.NewOrchestrator(cfg.Cascade, matcher, live, spoof, chain, cascadeOpts...)
	if err != nil {
		return err
	}

	var provider perception.Provider
	if cfg.Perception.URL != "" {
		client, err := perception.NewHTTPClient(cfg.Perception.URL,
			perception.WithHTTPClient(&http.Client{Timeout: cfg.Perception.Timeout}),
			perception.WithLogger(log),
		)
		if err != nil {
			return err
		}
		provider = client
		readiness["perception"] = client.HealthCheck
	}

	aggregator, err := risk.NewAggregator(cfg.Risk, alertStore, chain,
		risk.WithLogger(log),
		risk.WithMetrics(riskmetrics.New()),
		risk.WithSessions(sessionStore),
	)
	if err != nil {
		return err
	}

	engine, err := routing.NewEngine(cfg.Routing)
	if err != nil {
		return err
	}
	router, err := routing.NewService(engine, chain,
		routing.WithLogger(log),
		routing.WithSessions(sessionStore),
		routing.WithAlerts(aggregator),
	)
	if err != nil {
		return err
	}

	var limitStore ratelimit.Store = ratelimitstore.NewInMemoryStore()
	if rdb != nil {
		limitStore = ratelimitstore.NewRedisStore(rdb.Client)
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimit,
		ratelimit.WithMetrics(ratelimitmetrics.New()),
		ratelimit.WithLogger(log),
	)

	reviewers, err := admin.ParseReviewers(cfg.Review.Tokens)
	if err != nil {
		return err
	}
	if reviewers.Len() == 0 {
		log.Warn("no reviewers configured; alert resolution and integrity checks are closed")
	}

	handler := httptransport.NewRouter(httptransport.Config{
		Tokens:         auth.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer),
		Reviewers:      reviewers,
		Metrics:        platformmetrics.New(),
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Readiness:      readiness,
		RateLimit:      limiter.Handler,
	},
		sessionhandler.New(sessions, log),
		enrollmenthandler.New(enroller, log),
		cascadehandler.New(orchestrator, provider, log),
		riskhandler.New(aggregator, sessions, log),
		routinghandler.New(router, log),
		audithandler.New(chain, log),
	)

	srv := httpserver.New(cfg.Server, handler)
	g.Go(func() error {
		log.Info("starting facegate", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildAuditChain selects the chain store and, when brokers are configured,
// starts the Kafka forwarding worker on g.
func buildAuditChain(ctx context.Context, g *errgroup.Group, gctx context.Context, cfg *config.Config, deps infra, log *slog.Logger) (*audit.Chain, error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if deps.db != nil {
		pg := auditpostgres.New(deps.db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
	} else {
		log.Warn("no postgres configured; audit chain is held in memory")
	}

	opts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, err
		}
		if err := publisher.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			publisher.Close()
			return nil, err
		}
		queue := worker.NewQueue(cfg.Kafka.BufferSize, log, nil)
		opts = append(opts, audit.WithForwarder(queue))

		w := worker.NewWorker(publisher, queue.Events(), log)
		g.Go(func() error {
			defer publisher.Close()
			return w.Run(gctx)
		})
	}
	return audit.NewChain(store, []byte(cfg.Audit.Secret), opts...)
}
