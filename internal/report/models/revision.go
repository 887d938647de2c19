package models

import (
	"time"

	id "attest/pkg/domain"
)

// RevisionRecord is one entry in the append-only revision ledger. Rows are
// written exactly once, inside the issuance transaction, and never updated or
// deleted; the (LineageID, VersionNumber) pair is unique.
//
// The snapshot is an opaque serialized copy of the document at issuance time.
// Historical renderings of superseded versions come from here, independent of
// the live, mutable section rows.
type RevisionRecord struct {
	ID            id.RevisionID `json:"id"`
	LineageID     id.LineageID  `json:"lineage_id"`
	VersionNumber int           `json:"version_number"`
	Status        string        `json:"status"`
	Snapshot      []byte        `json:"snapshot"`
	IssuedAt      time.Time     `json:"issued_at"`
	IssuedBy      id.UserID     `json:"issued_by"`
}

// RevisionStatusIssued is the status recorded at append time. Ledger rows are
// immutable, so this reflects the state at capture, not the current head.
const RevisionStatusIssued = "issued"
