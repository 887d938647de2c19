package service

import (
	"context"
	"encoding/json"
	"errors"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// UpdateSectionInput carries a partial section update. Nil fields are left
// untouched.
type UpdateSectionInput struct {
	Content  json.RawMessage
	Outcome  *string
	Complete *bool
}

// UpdateSection edits one section of a draft. Both halves of the immutability
// guard run here: the service checks the document state up front, and the
// store refuses the write again if the document stopped being a draft in
// between.
func (s *Service) UpdateSection(ctx context.Context, documentID id.DocumentID, key string, input UpdateSectionInput) (*models.SectionInstance, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}
	if err := doc.CanEditContents(); err != nil {
		return nil, err
	}

	section, err := s.sections.FindByDocumentAndKey(ctx, documentID, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "section not found: "+key)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load section")
	}

	now := requestcontext.Now(ctx)
	if input.Content != nil {
		section.Content = input.Content
	}
	if input.Outcome != nil {
		outcome, err := models.ParseOutcomeCategory(*input.Outcome)
		if err != nil {
			return nil, err
		}
		section.Outcome = outcome
	}
	if input.Complete != nil {
		if *input.Complete {
			section.CompletedAt = &now
		} else {
			section.CompletedAt = nil
		}
	}
	section.UpdatedAt = now

	if err := s.sections.Update(ctx, section); err != nil {
		return nil, wrapGuardedWriteErr(err, "failed to update section")
	}

	s.invalidateReadiness(ctx, documentID)
	s.auditEmitter.emitBestEffort(ctx, audit.EventSectionUpdated, doc, "", key)
	return section, nil
}

// UpdateContext replaces the document's context flags. Conditional section
// requirements re-resolve against the new flags on the next validation, so
// the readiness cache entry is dropped here too.
func (s *Service) UpdateContext(ctx context.Context, documentID id.DocumentID, docContext map[string]string) (*models.Document, error) {
	if docContext == nil {
		docContext = map[string]string{}
	}
	now := requestcontext.Now(ctx)

	doc, err := s.documents.Execute(ctx, documentID,
		func(d *models.Document) error { return d.CanEditContents() },
		func(d *models.Document) {
			d.Context = docContext
			d.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, err
	}

	s.invalidateReadiness(ctx, documentID)
	s.auditEmitter.emitBestEffort(ctx, audit.EventContextUpdated, doc, "", "")
	return doc, nil
}

// wrapGuardedWriteErr translates storage sentinels from draft-guarded writes.
// ErrInvalidState means the document left draft between the service check and
// the write; surfacing edit_locked keeps the two guard layers indistinguishable
// to callers.
func wrapGuardedWriteErr(err error, message string) error {
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeEditLocked, "document is no longer a draft; fork a new version to make changes")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}
