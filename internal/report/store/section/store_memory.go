package section

import (
	"context"
	"sync"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// DocumentStateReader reports the lifecycle state of a document. The memory
// store consults it before every write: this is the storage-layer half of the
// immutability guard, independent of the service precondition.
type DocumentStateReader interface {
	StateOf(ctx context.Context, documentID id.DocumentID) (models.DocumentState, error)
}

// InMemoryStore keeps section instances in a map keyed by document.
type InMemoryStore struct {
	mu       sync.RWMutex
	sections map[id.DocumentID][]*models.SectionInstance
	states   DocumentStateReader
}

func NewInMemory(states DocumentStateReader) *InMemoryStore {
	return &InMemoryStore{
		sections: make(map[id.DocumentID][]*models.SectionInstance),
		states:   states,
	}
}

func cloneSection(sec *models.SectionInstance) *models.SectionInstance {
	dup := *sec
	if sec.CompletedAt != nil {
		completedAt := *sec.CompletedAt
		dup.CompletedAt = &completedAt
	}
	dup.Content = append(dup.Content[:0:0], sec.Content...)
	return &dup
}

func (s *InMemoryStore) guard(ctx context.Context, documentID id.DocumentID) error {
	state, err := s.states.StateOf(ctx, documentID)
	if err != nil {
		return err
	}
	if state != models.StateDraft {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *InMemoryStore) Create(ctx context.Context, sec *models.SectionInstance) error {
	if err := s.guard(ctx, sec.DocumentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sections[sec.DocumentID] {
		if existing.Key == sec.Key {
			return sentinel.ErrConflict
		}
	}
	s.sections[sec.DocumentID] = append(s.sections[sec.DocumentID], cloneSection(sec))
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID id.DocumentID) ([]*models.SectionInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.sections[documentID]
	out := make([]*models.SectionInstance, 0, len(rows))
	for _, sec := range rows {
		out = append(out, cloneSection(sec))
	}
	return out, nil
}

func (s *InMemoryStore) FindByDocumentAndKey(_ context.Context, documentID id.DocumentID, key string) (*models.SectionInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sec := range s.sections[documentID] {
		if sec.Key == key {
			return cloneSection(sec), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(ctx context.Context, sec *models.SectionInstance) error {
	if err := s.guard(ctx, sec.DocumentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sections[sec.DocumentID]
	for i, existing := range rows {
		if existing.ID == sec.ID {
			rows[i] = cloneSection(sec)
			return nil
		}
	}
	return sentinel.ErrNotFound
}
