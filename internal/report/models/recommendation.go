package models

import (
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// RecommendationStatus tracks the remediation lifecycle of a finding.
type RecommendationStatus string

const (
	RecommendationOpen       RecommendationStatus = "open"
	RecommendationInProgress RecommendationStatus = "in_progress"
	RecommendationClosed     RecommendationStatus = "closed"
	RecommendationSuperseded RecommendationStatus = "superseded"
)

// Priority orders recommendations for the reader.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// ParsePriority constructs a Priority from external input.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !validPriorities[p] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid priority")
	}
	return p, nil
}

// recommendationTransitions encodes the legal status moves. Superseded is set
// only by the forking rules, never by a direct status edit.
var recommendationTransitions = map[RecommendationStatus][]RecommendationStatus{
	RecommendationOpen:       {RecommendationInProgress, RecommendationClosed},
	RecommendationInProgress: {RecommendationOpen, RecommendationClosed},
	RecommendationClosed:     {RecommendationOpen},
}

// Recommendation is a tracked finding. Its ReferenceCode is allocated once,
// lineage-scoped, and carried verbatim into every future version; the row ID
// changes per version but the code never does.
type Recommendation struct {
	ID                 id.RecommendationID  `json:"id"`
	DocumentID         id.DocumentID        `json:"document_id"`
	ReferenceCode      string               `json:"reference_code,omitempty"`
	ReferenceSequence  int                  `json:"reference_sequence,omitempty"`
	FirstRaisedVersion int                  `json:"first_raised_version,omitempty"`
	Title              string               `json:"title"`
	Priority           Priority             `json:"priority"`
	Status             RecommendationStatus `json:"status"`
	SupersededBy       *id.RecommendationID `json:"superseded_by,omitempty"`
	Deleted            bool                 `json:"deleted"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// HasReferenceCode reports whether a stable code was already allocated, which
// marks the recommendation as inherited from a prior issued version.
func (r *Recommendation) HasReferenceCode() bool {
	return r.ReferenceCode != ""
}

// CanTransitionTo validates a requested status change.
func (r *Recommendation) CanTransitionTo(next RecommendationStatus) error {
	for _, allowed := range recommendationTransitions[r.Status] {
		if allowed == next {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeInvariantViolation,
		"recommendation cannot move from "+string(r.Status)+" to "+string(next))
}

// ApplyStatus records a validated status change.
func (r *Recommendation) ApplyStatus(next RecommendationStatus, now time.Time) {
	r.Status = next
	r.UpdatedAt = now
}

// MarkSuperseded links a replaced finding to its successor. Only the replace
// flow reaches this state; direct status edits cannot.
func (r *Recommendation) MarkSuperseded(by id.RecommendationID, now time.Time) {
	r.Status = RecommendationSuperseded
	r.SupersededBy = &by
	r.UpdatedAt = now
}

// MarkDeleted soft-deletes the recommendation. The row, and therefore its
// reference code, is never removed so codes are never recycled.
func (r *Recommendation) MarkDeleted(now time.Time) {
	r.Deleted = true
	r.UpdatedAt = now
}

// NewRecommendation creates an unallocated recommendation on a draft. The
// reference code and first_raised_version are assigned by the allocator
// during issuance.
func NewRecommendation(recID id.RecommendationID, documentID id.DocumentID, title string, priority Priority, now time.Time) (*Recommendation, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "recommendation title cannot be empty")
	}
	return &Recommendation{
		ID:         recID,
		DocumentID: documentID,
		Title:      title,
		Priority:   priority,
		Status:     RecommendationOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CopyForFork duplicates a recommendation into a new draft with the stable
// reference code and first_raised_version intact.
func (r *Recommendation) CopyForFork(recID id.RecommendationID, documentID id.DocumentID, now time.Time) *Recommendation {
	dup := &Recommendation{
		ID:                 recID,
		DocumentID:         documentID,
		ReferenceCode:      r.ReferenceCode,
		ReferenceSequence:  r.ReferenceSequence,
		FirstRaisedVersion: r.FirstRaisedVersion,
		Title:              r.Title,
		Priority:           r.Priority,
		Status:             r.Status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if r.SupersededBy != nil {
		supersededBy := *r.SupersededBy
		dup.SupersededBy = &supersededBy
	}
	return dup
}
