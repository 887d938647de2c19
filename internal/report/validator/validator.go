// Package validator implements the readiness gate for issuance. Validation is
// pure and deterministic: the same inputs always produce the same result, it
// never returns an error, and an ineligible document is a normal outcome.
// The same function serves speculative authoring feedback and the
// authoritative server-side gate inside the issuance transaction.
package validator

import (
	"sort"

	"attest/internal/report/catalog"
	"attest/internal/report/models"
)

// Validator evaluates documents against the requirement catalog.
type Validator struct {
	catalog *catalog.Catalog
}

// New constructs a Validator over a catalog.
func New(c *catalog.Catalog) *Validator {
	return &Validator{catalog: c}
}

// Validate checks a document's readiness for issuance.
//
// Inputs: the document type, its context record, the completion state per
// section key, and the document's live recommendations. Deleted
// recommendations never count toward aggregate rules.
func (v *Validator) Validate(
	docType string,
	docContext map[string]string,
	completion map[string]bool,
	recommendations []*models.Recommendation,
) models.ValidationResult {
	profiles, err := v.catalog.Resolve(docType)
	if err != nil {
		// Unknown type is reported as a blocker, not an error: the validator
		// contract is to always produce a structured result.
		return result([]models.Blocker{{
			Type:     models.BlockerConditionalMissing,
			FieldKey: "document_type",
			Message:  "document type is not in the requirement catalog",
		}})
	}

	var blockers []models.Blocker
	blockers = append(blockers, sectionBlockers(profiles, completion)...)
	blockers = append(blockers, conditionalBlockers(profiles, docContext)...)
	blockers = append(blockers, aggregateBlockers(profiles, docContext, recommendations)...)

	return result(blockers)
}

// sectionBlockers emits module_incomplete for every required section key,
// unioned across profiles and deduplicated by key, that lacks a completion
// marker.
func sectionBlockers(profiles []catalog.Profile, completion map[string]bool) []models.Blocker {
	seen := make(map[string]bool)
	var blockers []models.Blocker
	for _, p := range profiles {
		for _, key := range p.RequiredSections {
			if seen[key] {
				continue
			}
			seen[key] = true
			if !completion[key] {
				blockers = append(blockers, models.Blocker{
					Type:       models.BlockerModuleIncomplete,
					SectionKey: key,
					Message:    "required section is not complete",
				})
			}
		}
	}
	return blockers
}

// conditionalBlockers evaluates each profile's conditional predicates
// independently. Identical failures from different profiles (same field key
// and message) collapse into one blocker.
func conditionalBlockers(profiles []catalog.Profile, docContext map[string]string) []models.Blocker {
	type failure struct{ field, message string }
	seen := make(map[failure]bool)
	var blockers []models.Blocker
	for _, p := range profiles {
		for _, cond := range p.Conditionals {
			if !cond.Applies(docContext) || cond.Satisfied(docContext) {
				continue
			}
			f := failure{field: cond.RequireField, message: cond.Message}
			if seen[f] {
				continue
			}
			seen[f] = true
			blockers = append(blockers, models.Blocker{
				Type:     models.BlockerConditionalMissing,
				FieldKey: cond.RequireField,
				Message:  cond.Message,
			})
		}
	}
	return blockers
}

// aggregateBlockers enforces the findings rule: when any profile requires
// recommendations, the document must carry at least one live, open
// recommendation or set the explicit no-findings flag.
func aggregateBlockers(profiles []catalog.Profile, docContext map[string]string, recommendations []*models.Recommendation) []models.Blocker {
	required := false
	for _, p := range profiles {
		if p.RequireRecommendations {
			required = true
			break
		}
	}
	if !required || docContext["no_findings"] == "true" {
		return nil
	}
	for _, rec := range recommendations {
		if rec.Deleted {
			continue
		}
		if rec.Status == models.RecommendationOpen || rec.Status == models.RecommendationInProgress {
			return nil
		}
	}
	return []models.Blocker{{
		Type:    models.BlockerNoRecommendations,
		Message: "add at least one open recommendation or set the no-findings flag",
	}}
}

// result sorts blockers into a canonical order so identical inputs always
// yield byte-identical output.
func result(blockers []models.Blocker) models.ValidationResult {
	sort.SliceStable(blockers, func(i, j int) bool {
		a, b := blockers[i], blockers[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.SectionKey != b.SectionKey {
			return a.SectionKey < b.SectionKey
		}
		if a.FieldKey != b.FieldKey {
			return a.FieldKey < b.FieldKey
		}
		return a.Message < b.Message
	})
	if blockers == nil {
		blockers = []models.Blocker{}
	}
	return models.ValidationResult{Eligible: len(blockers) == 0, Blockers: blockers}
}
