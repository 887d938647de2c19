package document

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

func newDraft(t *testing.T) *models.Document {
	t.Helper()
	doc, err := models.NewDocument(id.DocumentID(uuid.New()), "security_assessment", nil, time.Now())
	require.NoError(t, err)
	return doc
}

func TestCreateAndFind(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	doc := newDraft(t)

	require.NoError(t, store.Create(ctx, doc))
	require.ErrorIs(t, store.Create(ctx, doc), sentinel.ErrConflict)

	found, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)
	assert.Equal(t, models.StateDraft, found.State)

	_, err = store.FindByID(ctx, id.DocumentID(uuid.New()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFindReturnsCopies(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	doc := newDraft(t)
	doc.Context = map[string]string{"scope": "full"}
	require.NoError(t, store.Create(ctx, doc))

	found, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	found.State = models.StateIssued
	found.Context["scope"] = "limited"

	again, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, again.State)
	assert.Equal(t, "full", again.Context["scope"])
}

func TestExecuteRunsCheckAndMutateAtomically(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	actor := id.UserID(uuid.New())
	doc := newDraft(t)
	require.NoError(t, store.Create(ctx, doc))

	issued, err := store.Execute(ctx, doc.ID,
		func(d *models.Document) error { return d.CanIssue() },
		func(d *models.Document) { d.ApplyIssuance(1, actor, "", time.Now()) },
	)
	require.NoError(t, err)
	assert.Equal(t, models.StateIssued, issued.State)

	// The check failure must leave the stored document untouched.
	_, err = store.Execute(ctx, doc.ID,
		func(d *models.Document) error { return d.CanIssue() },
		func(d *models.Document) { d.ApplyIssuance(2, actor, "", time.Now()) },
	)
	require.Error(t, err)

	found, err := store.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.VersionNumber)
}

func TestExecuteSerializesConcurrentFlips(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	actor := id.UserID(uuid.New())
	doc := newDraft(t)
	require.NoError(t, store.Create(ctx, doc))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Execute(ctx, doc.ID,
				func(d *models.Document) error { return d.CanIssue() },
				func(d *models.Document) { d.ApplyIssuance(1, actor, "", time.Now()) },
			)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one concurrent flip must lose")
}

func TestLineageQueries(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	actor := id.UserID(uuid.New())

	v1 := newDraft(t)
	require.NoError(t, store.Create(ctx, v1))
	_, err := store.Execute(ctx, v1.ID,
		func(d *models.Document) error { return d.CanIssue() },
		func(d *models.Document) { d.ApplyIssuance(1, actor, "", time.Now()) },
	)
	require.NoError(t, err)

	issuedV1, err := store.FindByID(ctx, v1.ID)
	require.NoError(t, err)
	v2, err := models.Fork(issuedV1, id.DocumentID(uuid.New()), time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, v2))

	head, err := store.FindLineageHead(ctx, v1.LineageID)
	require.NoError(t, err)
	assert.Equal(t, 2, head.VersionNumber)
	assert.Equal(t, models.StateDraft, head.State)

	issued, err := store.FindIssued(ctx, v1.LineageID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, issued.ID)

	_, err = store.FindLineageHead(ctx, id.LineageID(uuid.New()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestStateOf(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	doc := newDraft(t)
	require.NoError(t, store.Create(ctx, doc))

	state, err := store.StateOf(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, state)

	_, err = store.StateOf(ctx, id.DocumentID(uuid.New()))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
