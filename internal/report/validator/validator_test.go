package validator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attest/internal/report/catalog"
	"attest/internal/report/models"
	id "attest/pkg/domain"
)

type ValidatorSuite struct {
	suite.Suite
	validator *Validator
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.validator = New(catalog.Default())
}

func openRecommendation() *models.Recommendation {
	now := time.Now()
	rec, _ := models.NewRecommendation(
		id.RecommendationID(uuid.New()),
		id.DocumentID(uuid.New()),
		"Rotate service credentials",
		models.PriorityHigh,
		now,
	)
	return rec
}

func (s *ValidatorSuite) TestRequiredSections() {
	recs := []*models.Recommendation{openRecommendation()}

	s.Run("single incomplete section yields one blocker naming it", func() {
		// security_assessment requires scope, methodology, findings.
		res := s.validator.Validate("security_assessment", nil,
			map[string]bool{"scope": true, "methodology": true}, recs)
		s.False(res.Eligible)
		s.Require().Len(res.Blockers, 1)
		s.Equal(models.BlockerModuleIncomplete, res.Blockers[0].Type)
		s.Equal("findings", res.Blockers[0].SectionKey)
	})

	s.Run("all sections complete is eligible", func() {
		res := s.validator.Validate("security_assessment", nil,
			map[string]bool{"scope": true, "methodology": true, "findings": true}, recs)
		s.True(res.Eligible)
		s.Empty(res.Blockers)
	})

	s.Run("compound type unions sections without duplicate blockers", func() {
		// scope and findings are required by both sub-profiles; nothing done.
		res := s.validator.Validate("combined_assessment", nil, nil, recs)
		s.False(res.Eligible)
		byKey := map[string]int{}
		for _, b := range res.Blockers {
			s.Equal(models.BlockerModuleIncomplete, b.Type)
			byKey[b.SectionKey]++
		}
		s.Equal(map[string]int{"scope": 1, "methodology": 1, "findings": 1, "data_inventory": 1}, byKey)
	})
}

func (s *ValidatorSuite) TestConditionals() {
	complete := map[string]bool{"scope": true, "methodology": true, "findings": true}
	recs := []*models.Recommendation{openRecommendation()}

	s.Run("triggered conditional without the field blocks", func() {
		res := s.validator.Validate("security_assessment",
			map[string]string{"scope": "limited"}, complete, recs)
		s.False(res.Eligible)
		s.Require().Len(res.Blockers, 1)
		s.Equal(models.BlockerConditionalMissing, res.Blockers[0].Type)
		s.Equal("scope_justification", res.Blockers[0].FieldKey)
	})

	s.Run("triggered conditional with the field passes", func() {
		res := s.validator.Validate("security_assessment",
			map[string]string{"scope": "limited", "scope_justification": "client-directed carve-out"},
			complete, recs)
		s.True(res.Eligible)
	})

	s.Run("untriggered conditional is ignored", func() {
		res := s.validator.Validate("security_assessment",
			map[string]string{"scope": "full"}, complete, recs)
		s.True(res.Eligible)
	})
}

func (s *ValidatorSuite) TestAggregateRules() {
	complete := map[string]bool{"scope": true, "methodology": true, "findings": true}

	s.Run("no recommendations and no flag blocks", func() {
		res := s.validator.Validate("security_assessment", nil, complete, nil)
		s.False(res.Eligible)
		s.Require().Len(res.Blockers, 1)
		s.Equal(models.BlockerNoRecommendations, res.Blockers[0].Type)
	})

	s.Run("no-findings flag satisfies the rule", func() {
		res := s.validator.Validate("security_assessment",
			map[string]string{"no_findings": "true"}, complete, nil)
		s.True(res.Eligible)
	})

	s.Run("deleted recommendations do not count", func() {
		rec := openRecommendation()
		rec.MarkDeleted(time.Now())
		res := s.validator.Validate("security_assessment", nil, complete,
			[]*models.Recommendation{rec})
		s.False(res.Eligible)
	})

	s.Run("closed recommendations do not count", func() {
		rec := openRecommendation()
		rec.Status = models.RecommendationClosed
		res := s.validator.Validate("security_assessment", nil, complete,
			[]*models.Recommendation{rec})
		s.False(res.Eligible)
	})

	s.Run("type without the rule needs no recommendations", func() {
		res := s.validator.Validate("procedural_assessment", nil,
			map[string]bool{"scope": true, "procedures": true}, nil)
		s.True(res.Eligible)
	})
}

func (s *ValidatorSuite) TestUnknownType() {
	res := s.validator.Validate("imaginary", nil, nil, nil)
	s.False(res.Eligible)
	s.Require().Len(res.Blockers, 1)
	s.Equal("document_type", res.Blockers[0].FieldKey)
}

func (s *ValidatorSuite) TestDeterminism() {
	// Identical inputs must serialize byte-identically, including blocker order.
	docContext := map[string]string{"scope": "limited", "cross_border": "true"}
	first := s.validator.Validate("combined_assessment", docContext, map[string]bool{"scope": true}, nil)
	a, err := json.Marshal(first)
	s.Require().NoError(err)

	for range 20 {
		res := s.validator.Validate("combined_assessment", docContext, map[string]bool{"scope": true}, nil)
		b, err := json.Marshal(res)
		s.Require().NoError(err)
		s.Equal(string(a), string(b))
	}
}
