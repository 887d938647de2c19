package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attest/internal/report/allocator"
	"attest/internal/report/models"
	"attest/internal/report/snapshot"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Issue runs the issuance coordinator: confirm the version number against
// the revision ledger, re-run the readiness gate authoritatively, allocate
// reference codes, flip the draft to issued, append the ledger entry, and
// supersede the previous issued version. Everything happens inside one
// transaction; a failure at any step leaves the draft untouched.
//
// Two concurrent calls on the same draft produce exactly one issued version.
// The loser gets already_issued, from the locked state check or, at worst,
// from the ledger's uniqueness backstop.
func (s *Service) Issue(ctx context.Context, documentID id.DocumentID, changeLog string) (*models.Document, error) {
	start := time.Now()
	ctx, span := otel.Tracer("report").Start(ctx, "report.Issue",
		trace.WithAttributes(attribute.String("document_id", documentID.String())),
	)
	defer span.End()

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}
	// Fast fail outside the transaction. The same check runs again under the
	// row lock; this one just saves the transaction for the obvious retry.
	if err := doc.CanIssue(); err != nil {
		s.incrementIssuanceConflicts()
		return nil, err
	}
	changeLog = strings.TrimSpace(changeLog)
	if doc.VersionNumber > 1 && changeLog == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a change log is required when issuing a new version")
	}

	var issued *models.Document
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		actor := requestcontext.UserID(txCtx)

		// Re-check the draft state inside the transaction before trusting
		// anything read outside it. A lost race on this same draft must
		// surface as already_issued, never as a fork problem.
		doc, err := s.documents.FindByID(txCtx, documentID)
		if err != nil {
			return wrapDocumentErr(err)
		}
		if err := doc.CanIssue(); err != nil {
			return err
		}

		// Confirm the pre-computed version number against the ledger. A
		// mismatch means another version was issued after this draft was
		// forked.
		expected := 1
		latest, err := s.revisions.Latest(txCtx, doc.LineageID)
		switch {
		case err == nil:
			expected = latest.VersionNumber + 1
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read revision ledger")
		}
		if expected != doc.VersionNumber {
			// The ledger moved between the two reads above. If this very
			// draft is what got issued, the caller lost a race, not a fork.
			if current, err := s.documents.FindByID(txCtx, documentID); err == nil {
				if err := current.CanIssue(); err != nil {
					return err
				}
			}
			return dErrors.New(dErrors.CodeStaleFork,
				"a newer version of this lineage has been issued since this draft was created")
		}

		// Authoritative readiness gate over in-transaction reads. Loads are
		// sequential here: everything shares the transaction's connection.
		sections, err := s.sections.ListByDocument(txCtx, doc.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sections")
		}
		allRecs, err := s.recommendations.ListByDocument(txCtx, doc.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recommendations")
		}
		result := s.validateDocument(doc, sections, allRecs)
		if !result.Eligible {
			return dErrors.Wrap(&models.ValidationBlockedError{Blockers: result.Blockers},
				dErrors.CodeValidationBlocked, "document is not eligible for issuance")
		}

		// Allocate reference codes while the document is still a draft; the
		// store's draft guard refuses these writes after the flip. Deleted
		// recommendations never receive codes.
		live := liveRecommendations(allRecs)
		var newly []*models.Recommendation
		for _, rec := range live {
			if !rec.HasReferenceCode() {
				newly = append(newly, rec)
			}
		}
		if len(newly) > 0 {
			maxSequence, err := s.recommendations.MaxSequence(txCtx, doc.LineageID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read allocated sequences")
			}
			allocator.Allocate(live, maxSequence, expected, now)
			if err := s.recommendations.UpdateAllocated(txCtx, newly); err != nil {
				// The draft guard tripping here means the document stopped
				// being a draft mid-issuance, which is a lost issuance race.
				if errors.Is(err, sentinel.ErrInvalidState) {
					return dErrors.New(dErrors.CodeAlreadyIssued, "document has already been issued")
				}
				return wrapGuardedWriteErr(err, "failed to persist reference codes")
			}
		}

		// Find the version to supersede before the flip, while it is still
		// the only issued document in the lineage.
		var previous *models.Document
		if expected > 1 {
			previous, err = s.documents.FindIssued(txCtx, doc.LineageID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issued predecessor")
			}
		}

		// The serialization point: check and flip under the row lock.
		issuedDoc, err := s.documents.Execute(txCtx, doc.ID,
			func(d *models.Document) error {
				return d.CanIssue()
			},
			func(d *models.Document) {
				d.ApplyIssuance(expected, actor, changeLog, now)
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "document not found")
			}
			return err
		}

		// Append the immutable ledger entry. The unique (lineage, version)
		// constraint is the last line of defense against a double issuance.
		snapshotBytes, err := snapshot.Encode(issuedDoc, sections, live)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode revision snapshot")
		}
		rev := &models.RevisionRecord{
			ID:            id.RevisionID(uuid.New()),
			LineageID:     doc.LineageID,
			VersionNumber: expected,
			Status:        models.RevisionStatusIssued,
			Snapshot:      snapshotBytes,
			IssuedAt:      now,
			IssuedBy:      actor,
		}
		if err := s.revisions.Append(txCtx, rev); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyIssued, "this version was issued concurrently")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append revision")
		}

		// Supersede the predecessor in the same transaction, so the lineage
		// never has two issued versions after commit.
		if previous != nil {
			superseded, err := s.documents.Execute(txCtx, previous.ID,
				func(d *models.Document) error {
					return d.CanSupersede()
				},
				func(d *models.Document) {
					d.ApplySupersession(now)
				},
			)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede previous version")
			}
			if err := s.auditEmitter.emit(txCtx, audit.EventReportSuperseded, superseded, "superseded", ""); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record supersession audit")
			}
		}

		if err := s.auditEmitter.emit(txCtx, audit.EventReportIssued, issuedDoc, "issued", ""); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record issuance audit")
		}
		issued = issuedDoc
		return nil
	})
	if err != nil {
		span.RecordError(err)
		switch {
		case dErrors.HasCode(err, dErrors.CodeValidationBlocked):
			if s.metrics != nil {
				s.metrics.IncrementIssuanceBlocked()
			}
		case dErrors.HasCode(err, dErrors.CodeAlreadyIssued), dErrors.HasCode(err, dErrors.CodeStaleFork):
			s.incrementIssuanceConflicts()
		}
		return nil, err
	}

	s.invalidateReadiness(ctx, documentID)
	if s.metrics != nil {
		s.metrics.IncrementReportsIssued()
		s.metrics.ObserveIssue(start)
	}
	return issued, nil
}

func (s *Service) incrementIssuanceConflicts() {
	if s.metrics != nil {
		s.metrics.IncrementIssuanceConflicts()
	}
}

func liveRecommendations(recommendations []*models.Recommendation) []*models.Recommendation {
	live := make([]*models.Recommendation, 0, len(recommendations))
	for _, rec := range recommendations {
		if !rec.Deleted {
			live = append(live, rec)
		}
	}
	return live
}
