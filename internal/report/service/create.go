package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"attest/internal/report/models"
	"attest/internal/report/snapshot"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// ReportDetails bundles a document with everything it owns.
type ReportDetails struct {
	Document        *models.Document
	Sections        []*models.SectionInstance
	Recommendations []*models.Recommendation
}

// CreateReport opens a new lineage: a version-1 draft plus one empty section
// instance per required section of the document type.
func (s *Service) CreateReport(ctx context.Context, docType string, docContext map[string]string) (*ReportDetails, error) {
	if !s.catalog.HasType(docType) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown document type: "+docType)
	}
	required, err := s.catalog.RequiredSections(docType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve required sections")
	}

	now := requestcontext.Now(ctx)
	doc, err := models.NewDocument(id.DocumentID(uuid.New()), docType, docContext, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}

	sections := make([]*models.SectionInstance, 0, len(required))
	for _, key := range required {
		sections = append(sections, models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, key, now))
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.documents.Create(txCtx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
		}
		for _, section := range sections {
			if err := s.sections.Create(txCtx, section); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create section "+section.Key)
			}
		}
		s.auditEmitter.emitBestEffort(txCtx, audit.EventReportCreated, doc, "", "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementReportsCreated()
	}
	return &ReportDetails{Document: doc, Sections: sections, Recommendations: []*models.Recommendation{}}, nil
}

// GetReport loads a document with its sections and recommendations.
func (s *Service) GetReport(ctx context.Context, documentID id.DocumentID) (*ReportDetails, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}
	sections, recommendations, err := s.loadContents(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &ReportDetails{Document: doc, Sections: sections, Recommendations: recommendations}, nil
}

// GetIssuedReport resolves a lineage's stable endpoint: the currently issued
// version, whatever number that happens to be.
func (s *Service) GetIssuedReport(ctx context.Context, lineageID id.LineageID) (*ReportDetails, error) {
	doc, err := s.documents.FindIssued(ctx, lineageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "lineage has no issued version")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issued version")
	}
	sections, recommendations, err := s.loadContents(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return &ReportDetails{Document: doc, Sections: sections, Recommendations: recommendations}, nil
}

// ListRevisions returns the lineage's issuance history, oldest first.
func (s *Service) ListRevisions(ctx context.Context, lineageID id.LineageID) ([]*models.RevisionRecord, error) {
	revisions, err := s.revisions.ListByLineage(ctx, lineageID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list revisions")
	}
	if len(revisions) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "lineage has no issued revisions")
	}
	return revisions, nil
}

// GetRevision renders a historical version from its ledger snapshot. The
// snapshot is the authority for superseded versions; live rows are not
// consulted.
func (s *Service) GetRevision(ctx context.Context, lineageID id.LineageID, versionNumber int) (*snapshot.Snapshot, error) {
	rev, err := s.revisions.At(ctx, lineageID, versionNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "revision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load revision")
	}
	snap, err := snapshot.Decode(rev.Snapshot)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode revision snapshot")
	}
	return snap, nil
}

// loadContents fetches sections and recommendations in parallel.
func (s *Service) loadContents(ctx context.Context, documentID id.DocumentID) ([]*models.SectionInstance, []*models.Recommendation, error) {
	var (
		sections        []*models.SectionInstance
		recommendations []*models.Recommendation
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sections, err = s.sections.ListByDocument(gCtx, documentID)
		return err
	})
	g.Go(func() error {
		var err error
		recommendations, err = s.recommendations.ListByDocument(gCtx, documentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document contents")
	}
	return sections, recommendations, nil
}

func wrapDocumentErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
}
