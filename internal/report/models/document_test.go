package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

func draft(t *testing.T) *Document {
	t.Helper()
	doc, err := NewDocument(id.DocumentID(uuid.New()), "security_assessment", nil, time.Now())
	require.NoError(t, err)
	return doc
}

func TestNewDocument(t *testing.T) {
	doc := draft(t)
	assert.Equal(t, StateDraft, doc.State)
	assert.Equal(t, 1, doc.VersionNumber)
	assert.Equal(t, id.LineageID(doc.ID), doc.LineageID, "lineage id is the root document's own id")
	assert.NotNil(t, doc.Context)

	_, err := NewDocument(id.DocumentID(uuid.New()), "", nil, time.Now())
	require.Error(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	doc := draft(t)
	actor := id.UserID(uuid.New())
	now := time.Now()

	require.NoError(t, doc.CanEditContents())
	require.NoError(t, doc.CanIssue())
	require.Error(t, doc.CanSupersede())
	require.Error(t, doc.CanFork())

	doc.ApplyIssuance(1, actor, "", now)
	assert.Equal(t, StateIssued, doc.State)
	assert.Equal(t, actor, doc.IssuedBy)
	require.NotNil(t, doc.IssuedAt)

	require.Error(t, doc.CanEditContents())
	assert.True(t, dErrors.HasCode(doc.CanEditContents(), dErrors.CodeEditLocked))
	require.Error(t, doc.CanIssue())
	assert.True(t, dErrors.HasCode(doc.CanIssue(), dErrors.CodeAlreadyIssued))
	require.NoError(t, doc.CanSupersede())
	require.NoError(t, doc.CanFork())

	doc.ApplySupersession(now)
	assert.Equal(t, StateSuperseded, doc.State)
	require.Error(t, doc.CanEditContents())
	require.Error(t, doc.CanSupersede())
	require.Error(t, doc.CanFork())
}

func TestForkCarriesLineageAndContext(t *testing.T) {
	parent := draft(t)
	parent.Context["scope"] = "full"

	// Drafts cannot be forked.
	_, err := Fork(parent, id.DocumentID(uuid.New()), time.Now())
	require.Error(t, err)

	parent.ApplyIssuance(1, id.UserID(uuid.New()), "", time.Now())
	fork, err := Fork(parent, id.DocumentID(uuid.New()), time.Now())
	require.NoError(t, err)

	assert.Equal(t, StateDraft, fork.State)
	assert.Equal(t, 2, fork.VersionNumber)
	assert.Equal(t, parent.LineageID, fork.LineageID)
	assert.Equal(t, "full", fork.Context["scope"])
	assert.Nil(t, fork.IssuedAt)

	// Context is copied, not shared.
	fork.Context["scope"] = "limited"
	assert.Equal(t, "full", parent.Context["scope"])
}

func TestStateValidity(t *testing.T) {
	assert.True(t, StateDraft.IsValid())
	assert.True(t, StateIssued.IsValid())
	assert.True(t, StateSuperseded.IsValid())
	assert.False(t, DocumentState("archived").IsValid())
}
