package models

import (
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// DocumentState is the lifecycle state of one version of an assessment.
type DocumentState string

const (
	StateDraft      DocumentState = "draft"
	StateIssued     DocumentState = "issued"
	StateSuperseded DocumentState = "superseded"
)

// IsValid checks the state against the three supported lifecycle states.
func (s DocumentState) IsValid() bool {
	switch s {
	case StateDraft, StateIssued, StateSuperseded:
		return true
	}
	return false
}

// Document is the aggregate root for one version of a compliance assessment.
//
// Invariants:
//   - State transitions: draft → issued and issued → superseded only
//   - VersionNumber is pre-computed at creation (1 for a new lineage,
//     parent+1 for a fork) and confirmed against the revision ledger inside
//     the issuance transaction
//   - A document that is not a draft is immutable, along with every section
//     and recommendation it owns; corrections happen in the next version
//   - LineageID equals the root document's own ID and never changes across
//     versions
type Document struct {
	ID            id.DocumentID     `json:"id"`
	LineageID     id.LineageID      `json:"lineage_id"`
	Type          string            `json:"type"`
	State         DocumentState     `json:"state"`
	VersionNumber int               `json:"version_number"`
	Context       map[string]string `json:"context"`
	ChangeLog     string            `json:"change_log"`
	IssuedAt      *time.Time        `json:"issued_at,omitempty"`
	IssuedBy      id.UserID         `json:"issued_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (d *Document) IsDraft() bool {
	return d.State == StateDraft
}

// CanEditContents is the service-layer half of the immutability guard. Every
// mutation entry point for sections, recommendations and context flags calls
// this before touching anything the document owns.
func (d *Document) CanEditContents() error {
	if !d.IsDraft() {
		return dErrors.New(dErrors.CodeEditLocked, "document is "+string(d.State)+"; fork a new version to make changes")
	}
	return nil
}

// CanIssue checks the draft precondition for issuance. A non-draft document
// reports already_issued: a retried issue call after success is a no-op
// failure, not a duplicate issuance.
func (d *Document) CanIssue() error {
	if d.State != StateDraft {
		return dErrors.New(dErrors.CodeAlreadyIssued, "document has already been issued")
	}
	return nil
}

// ApplyIssuance flips the draft to issued. Call CanIssue first; the store's
// Execute callback runs both under the same lock.
func (d *Document) ApplyIssuance(versionNumber int, issuedBy id.UserID, changeLog string, now time.Time) {
	d.State = StateIssued
	d.VersionNumber = versionNumber
	d.IssuedAt = &now
	d.IssuedBy = issuedBy
	d.ChangeLog = changeLog
	d.UpdatedAt = now
}

// CanSupersede checks that the document is the currently issued version.
// Only an issued document may be superseded, and only by issuing its fork.
func (d *Document) CanSupersede() error {
	if d.State != StateIssued {
		return dErrors.New(dErrors.CodeInvariantViolation, "only an issued document can be superseded")
	}
	return nil
}

// ApplySupersession flips issued to superseded when the next version issues.
func (d *Document) ApplySupersession(now time.Time) {
	d.State = StateSuperseded
	d.UpdatedAt = now
}

// CanFork checks the fork precondition: only the latest, issued version of a
// lineage can seed a new draft.
func (d *Document) CanFork() error {
	if d.State != StateIssued {
		return dErrors.New(dErrors.CodeInvariantViolation, "only an issued document can be forked")
	}
	return nil
}

// NewDocument constructs the root draft of a new lineage. The lineage ID is
// the document's own ID; version 1 is pre-computed and confirmed at issuance.
func NewDocument(documentID id.DocumentID, docType string, docContext map[string]string, now time.Time) (*Document, error) {
	if docType == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document type cannot be empty")
	}
	if docContext == nil {
		docContext = map[string]string{}
	}
	return &Document{
		ID:            documentID,
		LineageID:     id.LineageID(documentID),
		Type:          docType,
		State:         StateDraft,
		VersionNumber: 1,
		Context:       docContext,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Fork builds the next draft of a lineage from its issued head. Content
// copying happens in the service; this covers document metadata and the
// pre-computed version number the issuance transaction later confirms.
func Fork(parent *Document, documentID id.DocumentID, now time.Time) (*Document, error) {
	if err := parent.CanFork(); err != nil {
		return nil, err
	}
	forkContext := make(map[string]string, len(parent.Context))
	for k, v := range parent.Context {
		forkContext[k] = v
	}
	return &Document{
		ID:            documentID,
		LineageID:     parent.LineageID,
		Type:          parent.Type,
		State:         StateDraft,
		VersionNumber: parent.VersionNumber + 1,
		Context:       forkContext,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
