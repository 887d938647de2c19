package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// ForkNewVersion opens the next draft of a lineage from its issued head.
// Sections and non-deleted recommendations are copied with content, outcomes,
// reference codes and first_raised_version intact: the new draft starts fully
// populated for forward editing. The issued parent is not touched; it is
// superseded only when the fork itself issues.
func (s *Service) ForkNewVersion(ctx context.Context, lineageID id.LineageID) (*ReportDetails, error) {
	ctx, span := otel.Tracer("report").Start(ctx, "report.ForkNewVersion",
		trace.WithAttributes(attribute.String("lineage_id", lineageID.String())),
	)
	defer span.End()

	head, err := s.documents.FindLineageHead(ctx, lineageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "lineage not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lineage head")
	}
	if err := forkable(head); err != nil {
		return nil, err
	}

	sections, recommendations, err := s.loadContents(ctx, head.ID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	fork, err := models.Fork(head, id.DocumentID(uuid.New()), now)
	if err != nil {
		return nil, err
	}

	forkSections := make([]*models.SectionInstance, 0, len(sections))
	for _, section := range sections {
		forkSections = append(forkSections, section.CopyForFork(id.SectionID(uuid.New()), fork.ID, now))
	}
	forkRecommendations := make([]*models.Recommendation, 0, len(recommendations))
	for _, rec := range recommendations {
		if rec.Deleted {
			continue
		}
		forkRecommendations = append(forkRecommendations, rec.CopyForFork(id.RecommendationID(uuid.New()), fork.ID, now))
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// Re-check the head under the transaction: a concurrent fork or
		// issuance moves it, and this fork must lose cleanly.
		current, err := s.documents.FindLineageHead(txCtx, lineageID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lineage head")
		}
		if current.ID != head.ID {
			return dErrors.New(dErrors.CodeConflict, "lineage head changed; fork from the current head")
		}

		if err := s.documents.Create(txCtx, fork); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a draft for the next version already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create fork")
		}
		for _, section := range forkSections {
			if err := s.sections.Create(txCtx, section); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to copy section "+section.Key)
			}
		}
		for _, rec := range forkRecommendations {
			if err := s.recommendations.Create(txCtx, rec); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to copy recommendation")
			}
		}
		if err := s.auditEmitter.emit(txCtx, audit.EventVersionForked, fork, "", ""); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record fork audit")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementVersionsForked()
	}
	return &ReportDetails{Document: fork, Sections: forkSections, Recommendations: forkRecommendations}, nil
}

// forkable translates the model invariant into caller-facing conflicts with
// a hint about what to do instead.
func forkable(head *models.Document) error {
	if err := head.CanFork(); err == nil {
		return nil
	}
	if head.State == models.StateDraft {
		return dErrors.New(dErrors.CodeConflict, "the lineage head is already a draft; edit it instead of forking")
	}
	return dErrors.New(dErrors.CodeConflict, "only the issued head of a lineage can be forked")
}
