// Package service orchestrates the assessment report lifecycle: draft
// authoring, the readiness gate, atomic issuance, and version forking.
// Handlers stay thin and domain logic lives in models; this package owns
// sequencing and transactional boundaries.
package service

import (
	"context"
	"log/slog"

	"attest/internal/report/catalog"
	reportmetrics "attest/internal/report/metrics"
	"attest/internal/report/models"
	"attest/internal/report/validator"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	FindLineageHead(ctx context.Context, lineageID id.LineageID) (*models.Document, error)
	FindIssued(ctx context.Context, lineageID id.LineageID) (*models.Document, error)
	Execute(ctx context.Context, documentID id.DocumentID, check func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error)
}

type SectionStore interface {
	Create(ctx context.Context, section *models.SectionInstance) error
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]*models.SectionInstance, error)
	FindByDocumentAndKey(ctx context.Context, documentID id.DocumentID, key string) (*models.SectionInstance, error)
	Update(ctx context.Context, section *models.SectionInstance) error
}

type RecommendationStore interface {
	Create(ctx context.Context, rec *models.Recommendation) error
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]*models.Recommendation, error)
	FindByID(ctx context.Context, recID id.RecommendationID) (*models.Recommendation, error)
	Update(ctx context.Context, rec *models.Recommendation) error
	UpdateAllocated(ctx context.Context, recs []*models.Recommendation) error
	MaxSequence(ctx context.Context, lineageID id.LineageID) (int, error)
}

type RevisionStore interface {
	Append(ctx context.Context, rev *models.RevisionRecord) error
	Latest(ctx context.Context, lineageID id.LineageID) (*models.RevisionRecord, error)
	At(ctx context.Context, lineageID id.LineageID, versionNumber int) (*models.RevisionRecord, error)
	ListByLineage(ctx context.Context, lineageID id.LineageID) ([]*models.RevisionRecord, error)
}

// ReadinessCache holds speculative validation results for the authoring
// feedback loop. Never consulted by the issuance gate.
type ReadinessCache interface {
	Get(ctx context.Context, documentID id.DocumentID) (*models.ValidationResult, error)
	Set(ctx context.Context, documentID id.DocumentID, result models.ValidationResult) error
	Invalidate(ctx context.Context, documentID id.DocumentID) error
}

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuditPublisher

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service coordinates report lifecycle operations across stores.
type Service struct {
	documents       DocumentStore
	sections        SectionStore
	recommendations RecommendationStore
	revisions       RevisionStore
	catalog         *catalog.Catalog
	validator       *validator.Validator
	tx              StoreTx
	logger          *slog.Logger
	metrics         *reportmetrics.Metrics
	auditEmitter    *auditEmitter
	readiness       ReadinessCache
}

type serviceConfig struct {
	tx             StoreTx
	logger         *slog.Logger
	metrics        *reportmetrics.Metrics
	auditPublisher AuditPublisher
	readiness      ReadinessCache
}

type Option func(cfg *serviceConfig)

func WithTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) {
		cfg.tx = tx
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) {
		cfg.logger = logger
	}
}

func WithMetrics(m *reportmetrics.Metrics) Option {
	return func(cfg *serviceConfig) {
		cfg.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(cfg *serviceConfig) {
		cfg.auditPublisher = publisher
	}
}

func WithReadinessCache(cache ReadinessCache) Option {
	return func(cfg *serviceConfig) {
		cfg.readiness = cache
	}
}

// New constructs a Service. Without WithTx it falls back to the in-memory
// transactional boundary, which is what unit tests want.
func New(
	documents DocumentStore,
	sections SectionStore,
	recommendations RecommendationStore,
	revisions RevisionStore,
	cat *catalog.Catalog,
	opts ...Option,
) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	tx := cfg.tx
	if tx == nil {
		tx = newInMemoryStoreTx()
	}
	return &Service{
		documents:       documents,
		sections:        sections,
		recommendations: recommendations,
		revisions:       revisions,
		catalog:         cat,
		validator:       validator.New(cat),
		tx:              tx,
		logger:          cfg.logger,
		metrics:         cfg.metrics,
		auditEmitter:    newAuditEmitter(cfg.logger, cfg.auditPublisher),
		readiness:       cfg.readiness,
	}
}

// invalidateReadiness drops the cached speculative result after a guarded
// mutation. Best-effort: a failed invalidation is logged, the TTL catches it.
func (s *Service) invalidateReadiness(ctx context.Context, documentID id.DocumentID) {
	if s.readiness == nil {
		return
	}
	if err := s.readiness.Invalidate(ctx, documentID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "readiness cache invalidation failed",
			"document_id", documentID, "error", err)
	}
}
