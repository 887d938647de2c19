package revision

import (
	"context"
	"sort"
	"sync"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// InMemoryStore is the in-memory revision ledger. Append-only by API shape:
// there is no update or delete, and (lineage, version) is unique.
type InMemoryStore struct {
	mu        sync.RWMutex
	revisions map[id.LineageID][]*models.RevisionRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{revisions: make(map[id.LineageID][]*models.RevisionRecord)}
}

func cloneRevision(rev *models.RevisionRecord) *models.RevisionRecord {
	dup := *rev
	dup.Snapshot = append(dup.Snapshot[:0:0], rev.Snapshot...)
	return &dup
}

// Append records an issued version. Returns ErrConflict when the version
// number is already taken in the lineage, which is how a lost issuance race
// surfaces.
func (s *InMemoryStore) Append(_ context.Context, rev *models.RevisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.revisions[rev.LineageID] {
		if existing.VersionNumber == rev.VersionNumber {
			return sentinel.ErrConflict
		}
	}
	s.revisions[rev.LineageID] = append(s.revisions[rev.LineageID], cloneRevision(rev))
	return nil
}

// Latest returns the highest-version revision of a lineage.
func (s *InMemoryStore) Latest(_ context.Context, lineageID id.LineageID) (*models.RevisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.RevisionRecord
	for _, rev := range s.revisions[lineageID] {
		if latest == nil || rev.VersionNumber > latest.VersionNumber {
			latest = rev
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneRevision(latest), nil
}

// At returns the revision of a lineage at an exact version number.
func (s *InMemoryStore) At(_ context.Context, lineageID id.LineageID, versionNumber int) (*models.RevisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rev := range s.revisions[lineageID] {
		if rev.VersionNumber == versionNumber {
			return cloneRevision(rev), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByLineage returns all revisions of a lineage ordered by version.
func (s *InMemoryStore) ListByLineage(_ context.Context, lineageID id.LineageID) ([]*models.RevisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.revisions[lineageID]
	out := make([]*models.RevisionRecord, 0, len(rows))
	for _, rev := range rows {
		out = append(out, cloneRevision(rev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}
