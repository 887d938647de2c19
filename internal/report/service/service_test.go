package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attest/internal/report/catalog"
	"attest/internal/report/models"
	documentstore "attest/internal/report/store/document"
	recommendationstore "attest/internal/report/store/recommendation"
	revisionstore "attest/internal/report/store/revision"
	sectionstore "attest/internal/report/store/section"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	auditmemory "attest/pkg/platform/audit/store/memory"
	"attest/pkg/requestcontext"
)

type ReportServiceSuite struct {
	suite.Suite
	docs       *documentstore.InMemoryStore
	sections   *sectionstore.InMemoryStore
	recs       *recommendationstore.InMemoryStore
	revisions  *revisionstore.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	service    *Service
	author     id.UserID
	ctx        context.Context
}

func TestReportServiceSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceSuite))
}

func (s *ReportServiceSuite) SetupTest() {
	s.docs = documentstore.NewInMemory()
	s.sections = sectionstore.NewInMemory(s.docs)
	s.recs = recommendationstore.NewInMemory(s.docs)
	s.revisions = revisionstore.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = New(s.docs, s.sections, s.recs, s.revisions, catalog.Default(),
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
	)
	s.author = id.UserID(uuid.New())
	s.ctx = requestcontext.WithUserID(context.Background(), s.author)
}

func boolPtr(b bool) *bool { return &b }
func strPtr(v string) *string { return &v }

// createDraft opens a security_assessment lineage.
func (s *ReportServiceSuite) createDraft(docContext map[string]string) *ReportDetails {
	details, err := s.service.CreateReport(s.ctx, "security_assessment", docContext)
	s.Require().NoError(err)
	return details
}

// completeAllSections marks every section of the document complete.
func (s *ReportServiceSuite) completeAllSections(documentID id.DocumentID) {
	details, err := s.service.GetReport(s.ctx, documentID)
	s.Require().NoError(err)
	for _, section := range details.Sections {
		_, err := s.service.UpdateSection(s.ctx, documentID, section.Key, UpdateSectionInput{
			Content:  json.RawMessage(`{"text":"assessed"}`),
			Complete: boolPtr(true),
		})
		s.Require().NoError(err)
	}
}

// readyDraft returns a draft that passes the readiness gate: all sections
// complete plus one open recommendation.
func (s *ReportServiceSuite) readyDraft() *ReportDetails {
	details := s.createDraft(nil)
	s.completeAllSections(details.Document.ID)
	_, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "rotate credentials", "high")
	s.Require().NoError(err)
	return details
}

func (s *ReportServiceSuite) TestCreateReport() {
	s.Run("unknown type is rejected", func() {
		_, err := s.service.CreateReport(s.ctx, "weather_report", nil)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("creates a version 1 draft with catalog sections", func() {
		details := s.createDraft(nil)
		doc := details.Document

		s.Equal(models.StateDraft, doc.State)
		s.Equal(1, doc.VersionNumber)
		s.Equal(id.LineageID(doc.ID), doc.LineageID)

		keys := make([]string, 0, len(details.Sections))
		for _, section := range details.Sections {
			s.False(section.IsComplete())
			keys = append(keys, section.Key)
		}
		s.ElementsMatch([]string{"scope", "methodology", "findings"}, keys)
	})

	s.Run("compound type unions sections across profiles", func() {
		details, err := s.service.CreateReport(s.ctx, "combined_assessment", nil)
		s.Require().NoError(err)

		keys := make([]string, 0, len(details.Sections))
		for _, section := range details.Sections {
			keys = append(keys, section.Key)
		}
		s.ElementsMatch([]string{"scope", "methodology", "findings", "data_inventory"}, keys)
	})

	s.Run("records an audit event", func() {
		details := s.createDraft(nil)
		events, err := s.auditStore.ListByLineage(s.ctx, details.Document.LineageID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventReportCreated), events[0].Action)
		s.Equal(s.author, events[0].Actor)
	})
}

func (s *ReportServiceSuite) TestCheckReadiness() {
	s.Run("incomplete sections block issuance", func() {
		details := s.createDraft(nil)
		_, err := s.service.UpdateSection(s.ctx, details.Document.ID, "scope", UpdateSectionInput{Complete: boolPtr(true)})
		s.Require().NoError(err)
		_, err = s.service.UpdateSection(s.ctx, details.Document.ID, "methodology", UpdateSectionInput{Complete: boolPtr(true)})
		s.Require().NoError(err)

		result, err := s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.False(result.Eligible)

		var incomplete []models.Blocker
		for _, blocker := range result.Blockers {
			if blocker.Type == models.BlockerModuleIncomplete {
				incomplete = append(incomplete, blocker)
			}
		}
		s.Require().Len(incomplete, 1)
		s.Equal("findings", incomplete[0].SectionKey)
	})

	s.Run("complete draft with a recommendation is eligible", func() {
		details := s.readyDraft()
		result, err := s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.True(result.Eligible)
		s.Empty(result.Blockers)
	})

	s.Run("no recommendations blocks unless flagged", func() {
		details := s.createDraft(nil)
		s.completeAllSections(details.Document.ID)

		result, err := s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.False(result.Eligible)
		s.Equal(models.BlockerNoRecommendations, result.Blockers[0].Type)

		flagged := s.createDraft(map[string]string{"no_findings": "true"})
		s.completeAllSections(flagged.Document.ID)
		result, err = s.service.CheckReadiness(s.ctx, flagged.Document.ID)
		s.Require().NoError(err)
		s.True(result.Eligible)
	})

	s.Run("conditional requirement follows the context record", func() {
		details := s.createDraft(map[string]string{"scope": "limited"})
		s.completeAllSections(details.Document.ID)
		_, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "limit blast radius", "")
		s.Require().NoError(err)

		result, err := s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.False(result.Eligible)
		s.Equal(models.BlockerConditionalMissing, result.Blockers[0].Type)
		s.Equal("scope_justification", result.Blockers[0].FieldKey)
	})

	s.Run("unknown document is not found", func() {
		_, err := s.service.CheckReadiness(s.ctx, id.DocumentID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ReportServiceSuite) TestUpdateSection() {
	s.Run("updates content, outcome and completion", func() {
		details := s.createDraft(nil)
		section, err := s.service.UpdateSection(s.ctx, details.Document.ID, "scope", UpdateSectionInput{
			Content:  json.RawMessage(`{"boundaries":"production"}`),
			Outcome:  strPtr("deficiency"),
			Complete: boolPtr(true),
		})
		s.Require().NoError(err)
		s.True(section.IsComplete())
		s.Equal(models.OutcomeDeficiency, section.Outcome)
		s.JSONEq(`{"boundaries":"production"}`, string(section.Content))
	})

	s.Run("clearing completion reopens the section", func() {
		details := s.createDraft(nil)
		_, err := s.service.UpdateSection(s.ctx, details.Document.ID, "scope", UpdateSectionInput{Complete: boolPtr(true)})
		s.Require().NoError(err)
		section, err := s.service.UpdateSection(s.ctx, details.Document.ID, "scope", UpdateSectionInput{Complete: boolPtr(false)})
		s.Require().NoError(err)
		s.False(section.IsComplete())
	})

	s.Run("invalid outcome is rejected", func() {
		details := s.createDraft(nil)
		_, err := s.service.UpdateSection(s.ctx, details.Document.ID, "scope", UpdateSectionInput{Outcome: strPtr("terrible")})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown section is not found", func() {
		details := s.createDraft(nil)
		_, err := s.service.UpdateSection(s.ctx, details.Document.ID, "appendix_z", UpdateSectionInput{Complete: boolPtr(true)})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ReportServiceSuite) TestUpdateContext() {
	s.Run("replacing flags re-resolves conditional requirements", func() {
		details := s.readyDraft()
		result, err := s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.Require().True(result.Eligible)

		_, err = s.service.UpdateContext(s.ctx, details.Document.ID, map[string]string{"scope": "limited"})
		s.Require().NoError(err)

		result, err = s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.False(result.Eligible)
		s.Equal(models.BlockerConditionalMissing, result.Blockers[0].Type)

		_, err = s.service.UpdateContext(s.ctx, details.Document.ID, map[string]string{
			"scope":               "limited",
			"scope_justification": "time-boxed engagement",
		})
		s.Require().NoError(err)

		result, err = s.service.CheckReadiness(s.ctx, details.Document.ID)
		s.Require().NoError(err)
		s.True(result.Eligible)
	})

	s.Run("issued document is locked", func() {
		details := s.readyDraft()
		_, err := s.service.Issue(s.ctx, details.Document.ID, "")
		s.Require().NoError(err)

		_, err = s.service.UpdateContext(s.ctx, details.Document.ID, map[string]string{"scope": "full"})
		s.True(dErrors.HasCode(err, dErrors.CodeEditLocked))
	})

	s.Run("unknown document is not found", func() {
		_, err := s.service.UpdateContext(s.ctx, id.DocumentID(uuid.New()), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("records an audit event", func() {
		details := s.createDraft(nil)
		_, err := s.service.UpdateContext(s.ctx, details.Document.ID, map[string]string{"scope": "full"})
		s.Require().NoError(err)

		events, err := s.auditStore.ListByLineage(s.ctx, details.Document.LineageID)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(string(audit.EventContextUpdated), events[len(events)-1].Action)
	})
}

func (s *ReportServiceSuite) TestRecommendations() {
	s.Run("add defaults priority to medium", func() {
		details := s.createDraft(nil)
		rec, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "patch the fleet", "")
		s.Require().NoError(err)
		s.Equal(models.PriorityMedium, rec.Priority)
		s.Equal(models.RecommendationOpen, rec.Status)
		s.False(rec.HasReferenceCode())
	})

	s.Run("empty title is rejected", func() {
		details := s.createDraft(nil)
		_, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "", "low")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("status transitions follow the lifecycle", func() {
		details := s.createDraft(nil)
		rec, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "patch the fleet", "high")
		s.Require().NoError(err)

		rec, err = s.service.UpdateRecommendationStatus(s.ctx, details.Document.ID, rec.ID, "in_progress")
		s.Require().NoError(err)
		s.Equal(models.RecommendationInProgress, rec.Status)

		rec, err = s.service.UpdateRecommendationStatus(s.ctx, details.Document.ID, rec.ID, "closed")
		s.Require().NoError(err)
		s.Equal(models.RecommendationClosed, rec.Status)

		_, err = s.service.UpdateRecommendationStatus(s.ctx, details.Document.ID, rec.ID, "in_progress")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("superseded is never a direct target", func() {
		details := s.createDraft(nil)
		rec, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "patch the fleet", "high")
		s.Require().NoError(err)

		_, err = s.service.UpdateRecommendationStatus(s.ctx, details.Document.ID, rec.ID, "superseded")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("delete is soft and hides the row from further edits", func() {
		details := s.createDraft(nil)
		rec, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "patch the fleet", "high")
		s.Require().NoError(err)

		s.Require().NoError(s.service.DeleteRecommendation(s.ctx, details.Document.ID, rec.ID))
		err = s.service.DeleteRecommendation(s.ctx, details.Document.ID, rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("replace links the successor and blocks double replacement", func() {
		details := s.createDraft(nil)
		rec, err := s.service.AddRecommendation(s.ctx, details.Document.ID, "patch the fleet", "high")
		s.Require().NoError(err)

		replacement, err := s.service.ReplaceRecommendation(s.ctx, details.Document.ID, rec.ID, "patch and rotate", "critical")
		s.Require().NoError(err)
		s.NotEqual(rec.ID, replacement.ID)

		old, err := s.recs.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(models.RecommendationSuperseded, old.Status)
		s.Require().NotNil(old.SupersededBy)
		s.Equal(replacement.ID, *old.SupersededBy)

		_, err = s.service.ReplaceRecommendation(s.ctx, details.Document.ID, rec.ID, "again", "low")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("recommendation from another document is not found", func() {
		first := s.createDraft(nil)
		second := s.createDraft(nil)
		rec, err := s.service.AddRecommendation(s.ctx, first.Document.ID, "patch the fleet", "high")
		s.Require().NoError(err)

		_, err = s.service.UpdateRecommendationStatus(s.ctx, second.Document.ID, rec.ID, "closed")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// fakeReadinessCache records cache traffic for assertions.
type fakeReadinessCache struct {
	mu      sync.Mutex
	entries map[id.DocumentID]models.ValidationResult
	sets    int
	dropped int
}

func newFakeReadinessCache() *fakeReadinessCache {
	return &fakeReadinessCache{entries: make(map[id.DocumentID]models.ValidationResult)}
}

func (c *fakeReadinessCache) Get(_ context.Context, documentID id.DocumentID) (*models.ValidationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result, ok := c.entries[documentID]; ok {
		return &result, nil
	}
	return nil, nil
}

func (c *fakeReadinessCache) Set(_ context.Context, documentID id.DocumentID, result models.ValidationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[documentID] = result
	c.sets++
	return nil
}

func (c *fakeReadinessCache) Invalidate(_ context.Context, documentID id.DocumentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
	c.dropped++
	return nil
}

func (s *ReportServiceSuite) TestReadinessCache() {
	cache := newFakeReadinessCache()
	service := New(s.docs, s.sections, s.recs, s.revisions, catalog.Default(),
		WithReadinessCache(cache),
	)

	details, err := service.CreateReport(s.ctx, "security_assessment", nil)
	s.Require().NoError(err)
	documentID := details.Document.ID

	s.Run("miss computes and populates", func() {
		result, err := service.CheckReadiness(s.ctx, documentID)
		s.Require().NoError(err)
		s.False(result.Eligible)
		s.Equal(1, cache.sets)
	})

	s.Run("hit serves the cached result", func() {
		_, err := service.CheckReadiness(s.ctx, documentID)
		s.Require().NoError(err)
		s.Equal(1, cache.sets, "second check must not recompute")
	})

	s.Run("guarded mutations invalidate", func() {
		before := cache.dropped
		_, err := service.UpdateSection(s.ctx, documentID, "scope", UpdateSectionInput{Complete: boolPtr(true)})
		s.Require().NoError(err)
		s.Equal(before+1, cache.dropped)

		result, err := service.CheckReadiness(s.ctx, documentID)
		s.Require().NoError(err)
		for _, blocker := range result.Blockers {
			s.NotEqual("scope", blocker.SectionKey, "stale blocker survived invalidation")
		}
	})
}

func (s *ReportServiceSuite) TestRequestTimeFlowsIntoWrites() {
	fixed := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, fixed)

	details, err := s.service.CreateReport(ctx, "security_assessment", nil)
	s.Require().NoError(err)
	s.Equal(fixed, details.Document.CreatedAt)
	for _, section := range details.Sections {
		s.Equal(fixed, section.CreatedAt)
	}
}
