package models

import "fmt"

// BlockerType classifies why a document is not eligible for issuance.
type BlockerType string

const (
	// BlockerModuleIncomplete: a required section has no completion marker.
	BlockerModuleIncomplete BlockerType = "module_incomplete"
	// BlockerConditionalMissing: a context-conditional requirement failed.
	BlockerConditionalMissing BlockerType = "conditional_missing"
	// BlockerNoRecommendations: no open recommendation and no explicit
	// no-findings flag.
	BlockerNoRecommendations BlockerType = "no_recommendations"
)

// Blocker is a transient, structured reason the readiness validator reports.
// Blockers are never persisted; they exist to drive authoring feedback and
// the issuance gate.
type Blocker struct {
	Type       BlockerType `json:"type"`
	SectionKey string      `json:"section_key,omitempty"`
	FieldKey   string      `json:"field_key,omitempty"`
	Message    string      `json:"message"`
}

// ValidationResult is the readiness validator's outcome. An ineligible result
// is a normal value, not an error.
type ValidationResult struct {
	Eligible bool      `json:"eligible"`
	Blockers []Blocker `json:"blockers"`
}

// ValidationBlockedError carries the blocker list when issuance is refused.
// Services wrap it with CodeValidationBlocked so callers can branch on the
// code and extract blockers via errors.As.
type ValidationBlockedError struct {
	Blockers []Blocker
}

func (e *ValidationBlockedError) Error() string {
	return fmt.Sprintf("issuance blocked by %d validation blocker(s)", len(e.Blockers))
}
