package models

import (
	"encoding/json"
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// OutcomeCategory classifies a completed section's finding at a structural
// level. The section content itself stays opaque to this core.
type OutcomeCategory string

const (
	OutcomeSatisfactory  OutcomeCategory = "satisfactory"
	OutcomeDeficiency    OutcomeCategory = "deficiency"
	OutcomeObservation   OutcomeCategory = "observation"
	OutcomeNotAssessed   OutcomeCategory = "not_assessed"
	OutcomeNotApplicable OutcomeCategory = "not_applicable"
)

var validOutcomes = map[OutcomeCategory]bool{
	OutcomeSatisfactory:  true,
	OutcomeDeficiency:    true,
	OutcomeObservation:   true,
	OutcomeNotAssessed:   true,
	OutcomeNotApplicable: true,
}

// ParseOutcomeCategory constructs an OutcomeCategory from external input.
func ParseOutcomeCategory(s string) (OutcomeCategory, error) {
	if s == "" {
		return OutcomeNotAssessed, nil
	}
	o := OutcomeCategory(s)
	if !validOutcomes[o] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid outcome category")
	}
	return o, nil
}

// SectionInstance is one required section of a document. Content is an
// arbitrary payload owned by the authoring surface; the core tracks only the
// completion marker and outcome category structurally.
type SectionInstance struct {
	ID          id.SectionID    `json:"id"`
	DocumentID  id.DocumentID   `json:"document_id"`
	Key         string          `json:"key"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Outcome     OutcomeCategory `json:"outcome"`
	Content     json.RawMessage `json:"content,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (s *SectionInstance) IsComplete() bool {
	return s.CompletedAt != nil
}

// NewSectionInstance creates an empty, incomplete section for a draft.
func NewSectionInstance(sectionID id.SectionID, documentID id.DocumentID, key string, now time.Time) *SectionInstance {
	return &SectionInstance{
		ID:         sectionID,
		DocumentID: documentID,
		Key:        key,
		Outcome:    OutcomeNotAssessed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CopyForFork duplicates a section into a new draft, preserving content,
// outcome and completion so the fork starts fully populated.
func (s *SectionInstance) CopyForFork(sectionID id.SectionID, documentID id.DocumentID, now time.Time) *SectionInstance {
	dup := &SectionInstance{
		ID:         sectionID,
		DocumentID: documentID,
		Key:        s.Key,
		Outcome:    s.Outcome,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		dup.CompletedAt = &completedAt
	}
	if len(s.Content) > 0 {
		dup.Content = append(json.RawMessage(nil), s.Content...)
	}
	return dup
}
