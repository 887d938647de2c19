package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	jwttoken "attest/internal/jwt_token"
	"attest/internal/platform/config"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	"attest/internal/platform/middleware"
	platformredis "attest/internal/platform/redis"
	"attest/internal/report/catalog"
	"attest/internal/report/handler"
	reportmetrics "attest/internal/report/metrics"
	"attest/internal/report/service"
	documentstore "attest/internal/report/store/document"
	"attest/internal/report/store/readiness"
	recommendationstore "attest/internal/report/store/recommendation"
	revisionstore "attest/internal/report/store/revision"
	sectionstore "attest/internal/report/store/section"
	"attest/pkg/platform/audit"
	auditmemory "attest/pkg/platform/audit/store/memory"
	auditpostgres "attest/pkg/platform/audit/store/postgres"
	"attest/pkg/platform/audit/relay"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in internal/report.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	cat, err := loadCatalog(cfg, log)
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(reportmetrics.New()),
	}

	var (
		docs            service.DocumentStore
		sections        service.SectionStore
		recommendations service.RecommendationStore
		revisions       service.RevisionStore
		db              *sql.DB
	)
	if cfg.DatabaseURL != "" {
		db, err = openPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		docs = documentstore.NewPostgres(db)
		sections = sectionstore.NewPostgres(db)
		recommendations = recommendationstore.NewPostgres(db)
		revisions = revisionstore.NewPostgres(db)
		opts = append(opts,
			service.WithTx(newReportPostgresTx(db)),
			service.WithAuditPublisher(audit.NewPublisher(auditpostgres.New(db))),
		)
		log.Info("using postgres storage")
	} else {
		docStore := documentstore.NewInMemory()
		docs = docStore
		sections = sectionstore.NewInMemory(docStore)
		recommendations = recommendationstore.NewInMemory(docStore)
		revisions = revisionstore.NewInMemory()
		opts = append(opts,
			service.WithAuditPublisher(audit.NewPublisher(auditmemory.NewInMemoryStore())),
		)
		log.Warn("no ATTEST_DATABASE_URL set, using in-memory storage")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithReadinessCache(
			readiness.NewRedis(redisClient.Client, readiness.DefaultTTL)))
		log.Info("readiness cache enabled")
	}

	svc := service.New(docs, sections, recommendations, revisions, cat, opts...)

	// Background relay publishing the audit outbox to Kafka. Only meaningful
	// with postgres storage, where the outbox table exists.
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Kafka.Brokers) > 0 && db != nil {
		kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		topics := relay.Topics{
			Compliance: "audit.compliance",
			Operations: "audit.operations",
		}
		if err := relay.EnsureTopics(rootCtx, kafkaClient, 3, topics); err != nil {
			return err
		}

		auditRelay := relay.New(relay.NewPostgresSource(db), relay.NewKafkaSender(kafkaClient), topics, log)
		go func() {
			if err := auditRelay.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err)
			}
		}()
		log.Info("audit relay started", "brokers", cfg.Kafka.Brokers)
	}

	router := newRouter(cfg, log, svc)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting attest", "addr", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newRouter(cfg config.Server, log *slog.Logger, svc *service.Service) http.Handler {
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "attest", "attest-api")
	reports := handler.New(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		reports.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireServiceKey(cfg.RendererKeyHash, log))
		reports.RegisterRenderer(r)
	})
	return r
}

func loadCatalog(cfg config.Server, log *slog.Logger) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		log.Info("using built-in document type catalog")
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded document type catalog", "path", cfg.CatalogPath)
	return cat, nil
}

func openPostgres(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
