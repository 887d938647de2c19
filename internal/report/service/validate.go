package service

import (
	"context"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
)

// CheckReadiness is the speculative validation surface for authoring UIs: it
// reports what the issuance gate would say right now, without attempting to
// issue. Results may be served from cache; the authoritative gate inside the
// issuance transaction always recomputes.
func (s *Service) CheckReadiness(ctx context.Context, documentID id.DocumentID) (models.ValidationResult, error) {
	if s.readiness != nil {
		cached, err := s.readiness.Get(ctx, documentID)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "readiness cache read failed", "document_id", documentID, "error", err)
		}
		if cached != nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return *cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return models.ValidationResult{}, wrapDocumentErr(err)
	}
	sections, recommendations, err := s.loadContents(ctx, documentID)
	if err != nil {
		return models.ValidationResult{}, err
	}

	result := s.validateDocument(doc, sections, recommendations)

	if s.readiness != nil {
		if err := s.readiness.Set(ctx, documentID, result); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "readiness cache write failed", "document_id", documentID, "error", err)
		}
	}

	decision := "eligible"
	if !result.Eligible {
		decision = "blocked"
	}
	s.auditEmitter.emitBestEffort(ctx, audit.EventReadinessChecked, doc, decision, "")
	return result, nil
}

// validateDocument runs the pure readiness check over live contents.
func (s *Service) validateDocument(doc *models.Document, sections []*models.SectionInstance, recommendations []*models.Recommendation) models.ValidationResult {
	return s.validator.Validate(doc.Type, doc.Context, completionOf(sections), recommendations)
}

func completionOf(sections []*models.SectionInstance) map[string]bool {
	completion := make(map[string]bool, len(sections))
	for _, section := range sections {
		completion[section.Key] = section.IsComplete()
	}
	return completion
}
