package recommendation

import (
	"context"
	"sync"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// DocumentLineageReader exposes the document facts this store needs: the
// state check for the storage-layer immutability guard, and lineage
// membership for the sequence aggregate.
type DocumentLineageReader interface {
	StateOf(ctx context.Context, documentID id.DocumentID) (models.DocumentState, error)
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
}

// InMemoryStore keeps recommendations in a map keyed by document. Deleted
// rows stay in place; soft delete is a flag flip, never a removal, so
// reference sequences are never freed.
type InMemoryStore struct {
	mu   sync.RWMutex
	recs map[id.DocumentID][]*models.Recommendation
	docs DocumentLineageReader
}

func NewInMemory(docs DocumentLineageReader) *InMemoryStore {
	return &InMemoryStore{
		recs: make(map[id.DocumentID][]*models.Recommendation),
		docs: docs,
	}
}

func cloneRecommendation(rec *models.Recommendation) *models.Recommendation {
	dup := *rec
	if rec.SupersededBy != nil {
		supersededBy := *rec.SupersededBy
		dup.SupersededBy = &supersededBy
	}
	return &dup
}

func (s *InMemoryStore) guard(ctx context.Context, documentID id.DocumentID) error {
	state, err := s.docs.StateOf(ctx, documentID)
	if err != nil {
		return err
	}
	if state != models.StateDraft {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *InMemoryStore) Create(ctx context.Context, rec *models.Recommendation) error {
	if err := s.guard(ctx, rec.DocumentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.DocumentID] = append(s.recs[rec.DocumentID], cloneRecommendation(rec))
	return nil
}

// ListByDocument returns every row including soft-deleted ones; callers
// filter. The allocator needs deleted rows to keep sequences burned.
func (s *InMemoryStore) ListByDocument(_ context.Context, documentID id.DocumentID) ([]*models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.recs[documentID]
	out := make([]*models.Recommendation, 0, len(rows))
	for _, rec := range rows {
		out = append(out, cloneRecommendation(rec))
	}
	return out, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, recID id.RecommendationID) (*models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rows := range s.recs {
		for _, rec := range rows {
			if rec.ID == recID {
				return cloneRecommendation(rec), nil
			}
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(ctx context.Context, rec *models.Recommendation) error {
	if err := s.guard(ctx, rec.DocumentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.recs[rec.DocumentID]
	for i, existing := range rows {
		if existing.ID == rec.ID {
			rows[i] = cloneRecommendation(rec)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// UpdateAllocated persists allocator output. It runs inside the issuance
// transaction while the document is still draft, so the state guard applies
// like any other write.
func (s *InMemoryStore) UpdateAllocated(ctx context.Context, recs []*models.Recommendation) error {
	for _, rec := range recs {
		if err := s.Update(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// MaxSequence returns the highest reference sequence ever allocated across
// every document of a lineage, counting soft-deleted rows.
func (s *InMemoryStore) MaxSequence(ctx context.Context, lineageID id.LineageID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := 0
	for documentID, rows := range s.recs {
		doc, err := s.docs.FindByID(ctx, documentID)
		if err != nil {
			return 0, err
		}
		if doc.LineageID != lineageID {
			continue
		}
		for _, rec := range rows {
			if rec.ReferenceSequence > best {
				best = rec.ReferenceSequence
			}
		}
	}
	return best, nil
}
