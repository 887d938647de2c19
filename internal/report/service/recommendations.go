package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// AddRecommendation records a new finding on a draft. The reference code
// stays empty until issuance; the allocator assigns it then.
func (s *Service) AddRecommendation(ctx context.Context, documentID id.DocumentID, title, priority string) (*models.Recommendation, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}
	if err := doc.CanEditContents(); err != nil {
		return nil, err
	}

	parsedPriority, err := models.ParsePriority(priority)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	rec, err := models.NewRecommendation(id.RecommendationID(uuid.New()), documentID, title, parsedPriority, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}

	if err := s.recommendations.Create(ctx, rec); err != nil {
		return nil, wrapGuardedWriteErr(err, "failed to create recommendation")
	}

	s.invalidateReadiness(ctx, documentID)
	s.auditEmitter.emitBestEffort(ctx, audit.EventRecommendationAdded, doc, "", rec.Title)
	return rec, nil
}

// UpdateRecommendationStatus moves a recommendation through its remediation
// lifecycle. Superseded is never a legal target here; forking sets it.
func (s *Service) UpdateRecommendationStatus(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID, status string) (*models.Recommendation, error) {
	next := models.RecommendationStatus(status)
	switch next {
	case models.RecommendationOpen, models.RecommendationInProgress, models.RecommendationClosed:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid recommendation status: "+status)
	}

	doc, rec, err := s.loadDraftRecommendation(ctx, documentID, recID)
	if err != nil {
		return nil, err
	}

	if err := rec.CanTransitionTo(next); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeConflict, dErrors.MessageOf(err))
		}
		return nil, err
	}
	rec.ApplyStatus(next, requestcontext.Now(ctx))

	if err := s.recommendations.Update(ctx, rec); err != nil {
		return nil, wrapGuardedWriteErr(err, "failed to update recommendation")
	}

	s.invalidateReadiness(ctx, documentID)
	s.auditEmitter.emitBestEffort(ctx, audit.EventRecommendationStatusChanged, doc, string(next), rec.Title)
	return rec, nil
}

// ReplaceRecommendation supersedes an inherited finding with a re-scoped
// one. The old recommendation keeps its reference code and is linked to its
// successor; the new one starts unallocated and receives a fresh code at the
// next issuance. Both writes happen in one transaction.
func (s *Service) ReplaceRecommendation(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID, title, priority string) (*models.Recommendation, error) {
	doc, old, err := s.loadDraftRecommendation(ctx, documentID, recID)
	if err != nil {
		return nil, err
	}
	if old.Deleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "recommendation not found")
	}
	if old.Status == models.RecommendationSuperseded {
		return nil, dErrors.New(dErrors.CodeConflict, "recommendation has already been replaced")
	}

	parsedPriority, err := models.ParsePriority(priority)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	replacement, err := models.NewRecommendation(id.RecommendationID(uuid.New()), documentID, title, parsedPriority, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.recommendations.Create(txCtx, replacement); err != nil {
			return wrapGuardedWriteErr(err, "failed to create replacement recommendation")
		}
		old.MarkSuperseded(replacement.ID, now)
		if err := s.recommendations.Update(txCtx, old); err != nil {
			return wrapGuardedWriteErr(err, "failed to supersede recommendation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReadiness(ctx, documentID)
	s.auditEmitter.emitBestEffort(ctx, audit.EventRecommendationStatusChanged, doc, string(models.RecommendationSuperseded), old.Title)
	return replacement, nil
}

// DeleteRecommendation soft-deletes a recommendation on a draft. The row
// survives so any allocated reference code stays burned forever.
func (s *Service) DeleteRecommendation(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID) error {
	doc, rec, err := s.loadDraftRecommendation(ctx, documentID, recID)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return dErrors.New(dErrors.CodeNotFound, "recommendation not found")
	}

	rec.MarkDeleted(requestcontext.Now(ctx))
	if err := s.recommendations.Update(ctx, rec); err != nil {
		return wrapGuardedWriteErr(err, "failed to delete recommendation")
	}

	s.invalidateReadiness(ctx, documentID)
	s.auditEmitter.emitBestEffort(ctx, audit.EventRecommendationDeleted, doc, "", rec.Title)
	return nil
}

func (s *Service) loadDraftRecommendation(ctx context.Context, documentID id.DocumentID, recID id.RecommendationID) (*models.Document, *models.Recommendation, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, nil, wrapDocumentErr(err)
	}
	if err := doc.CanEditContents(); err != nil {
		return nil, nil, err
	}

	rec, err := s.recommendations.FindByID(ctx, recID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "recommendation not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recommendation")
	}
	if rec.DocumentID != documentID {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "recommendation not found")
	}
	return doc, rec, nil
}
