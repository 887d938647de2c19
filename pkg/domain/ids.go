// Package domain holds shared identifier types. IDs are distinct types over
// uuid.UUID so a document ID cannot be passed where a lineage ID is expected.
//
// Construct via the Parse helpers at trust boundaries; direct casting bypasses
// validation and is reserved for internal code that already holds a valid UUID.
package domain

import (
	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
)

// Typed identifiers for the report lifecycle aggregates.
type (
	// DocumentID identifies one version of an assessment document.
	DocumentID uuid.UUID
	// LineageID is the root document ID shared by all versions of one assessment.
	LineageID uuid.UUID
	// SectionID identifies a section instance owned by a document.
	SectionID uuid.UUID
	// RecommendationID identifies a recommendation row (distinct from its
	// stable reference code, which survives across versions).
	RecommendationID uuid.UUID
	// RevisionID identifies an entry in the revision ledger.
	RevisionID uuid.UUID
	// UserID identifies the authenticated author performing an operation.
	UserID uuid.UUID
)

func (d DocumentID) String() string       { return uuid.UUID(d).String() }
func (l LineageID) String() string        { return uuid.UUID(l).String() }
func (s SectionID) String() string        { return uuid.UUID(s).String() }
func (r RecommendationID) String() string { return uuid.UUID(r).String() }
func (r RevisionID) String() string       { return uuid.UUID(r).String() }
func (u UserID) String() string           { return uuid.UUID(u).String() }

func (d DocumentID) IsNil() bool       { return uuid.UUID(d) == uuid.Nil }
func (l LineageID) IsNil() bool        { return uuid.UUID(l) == uuid.Nil }
func (s SectionID) IsNil() bool        { return uuid.UUID(s) == uuid.Nil }
func (r RecommendationID) IsNil() bool { return uuid.UUID(r) == uuid.Nil }
func (u UserID) IsNil() bool           { return uuid.UUID(u) == uuid.Nil }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// ParseDocumentID constructs a DocumentID from external input.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	return DocumentID(u), err
}

// ParseLineageID constructs a LineageID from external input.
func ParseLineageID(s string) (LineageID, error) {
	u, err := parseUUID(s)
	return LineageID(u), err
}

// ParseRecommendationID constructs a RecommendationID from external input.
func ParseRecommendationID(s string) (RecommendationID, error) {
	u, err := parseUUID(s)
	return RecommendationID(u), err
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}
