package document

import (
	"context"
	"sync"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// InMemoryStore keeps documents in a map. Used by unit tests and local
// development; PostgresStore is the production implementation.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.DocumentID]*models.Document)}
}

func cloneDocument(d *models.Document) *models.Document {
	dup := *d
	dup.Context = make(map[string]string, len(d.Context))
	for k, v := range d.Context {
		dup.Context[k] = v
	}
	if d.IssuedAt != nil {
		issuedAt := *d.IssuedAt
		dup.IssuedAt = &issuedAt
	}
	return &dup
}

func (s *InMemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDocument(doc), nil
}

// FindLineageHead returns the highest-version document of a lineage,
// regardless of state.
func (s *InMemoryStore) FindLineageHead(_ context.Context, lineageID id.LineageID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var head *models.Document
	for _, doc := range s.docs {
		if doc.LineageID != lineageID {
			continue
		}
		if head == nil || doc.VersionNumber > head.VersionNumber {
			head = doc
		}
	}
	if head == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneDocument(head), nil
}

// FindIssued returns the currently issued (non-superseded) version of a
// lineage, or ErrNotFound when nothing has been issued yet.
func (s *InMemoryStore) FindIssued(_ context.Context, lineageID id.LineageID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.LineageID == lineageID && doc.State == models.StateIssued {
			return cloneDocument(doc), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Execute runs check then mutate on a document under the store lock, so the
// validation and the write are one atomic step. The postgres implementation
// provides the same contract with SELECT ... FOR UPDATE.
func (s *InMemoryStore) Execute(
	_ context.Context,
	documentID id.DocumentID,
	check func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := check(doc); err != nil {
		return nil, err
	}
	mutate(doc)
	return cloneDocument(doc), nil
}

// StateOf lets sibling stores enforce the storage-layer immutability policy
// without reaching into this store's internals.
func (s *InMemoryStore) StateOf(_ context.Context, documentID id.DocumentID) (models.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return doc.State, nil
}
