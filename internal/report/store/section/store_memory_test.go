package section

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/report/models"
	documentstore "attest/internal/report/store/document"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

func newStores(t *testing.T) (*documentstore.InMemoryStore, *InMemoryStore, *models.Document) {
	t.Helper()
	docs := documentstore.NewInMemory()
	sections := NewInMemory(docs)

	doc, err := models.NewDocument(id.DocumentID(uuid.New()), "security_assessment", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, docs.Create(context.Background(), doc))
	return docs, sections, doc
}

func issue(t *testing.T, docs *documentstore.InMemoryStore, documentID id.DocumentID) {
	t.Helper()
	_, err := docs.Execute(context.Background(), documentID,
		func(d *models.Document) error { return d.CanIssue() },
		func(d *models.Document) { d.ApplyIssuance(1, id.UserID(uuid.New()), "", time.Now()) },
	)
	require.NoError(t, err)
}

func TestCreateAndListSections(t *testing.T) {
	_, sections, doc := newStores(t)
	ctx := context.Background()

	sec := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "scope", time.Now())
	require.NoError(t, sections.Create(ctx, sec))
	require.ErrorIs(t, sections.Create(ctx, sec), sentinel.ErrConflict)

	listed, err := sections.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "scope", listed[0].Key)
	assert.False(t, listed[0].IsComplete())
}

// Writes against a non-draft document are refused at the storage layer, even
// when the caller skipped the service-level check.
func TestWritesRefusedOnceIssued(t *testing.T) {
	docs, sections, doc := newStores(t)
	ctx := context.Background()

	sec := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "scope", time.Now())
	require.NoError(t, sections.Create(ctx, sec))

	issue(t, docs, doc.ID)

	now := time.Now()
	sec.CompletedAt = &now
	require.ErrorIs(t, sections.Update(ctx, sec), sentinel.ErrInvalidState)

	other := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "findings", time.Now())
	require.ErrorIs(t, sections.Create(ctx, other), sentinel.ErrInvalidState)

	// Reads keep working.
	found, err := sections.FindByDocumentAndKey(ctx, doc.ID, "scope")
	require.NoError(t, err)
	assert.False(t, found.IsComplete())
}

func TestUpdateUnknownSection(t *testing.T) {
	_, sections, doc := newStores(t)
	ctx := context.Background()

	ghost := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "scope", time.Now())
	require.ErrorIs(t, sections.Update(ctx, ghost), sentinel.ErrNotFound)
}
