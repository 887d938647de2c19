package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attest/pkg/domain"
	"attest/pkg/requestcontext"
)

type captureStore struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func TestEmit_SetsTimestampFromRequestContext(t *testing.T) {
	store := &captureStore{}
	pub := NewPublisher(store)

	requestTime := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), requestTime)

	err := pub.Emit(ctx, Event{Action: string(EventReportIssued)})
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	assert.Equal(t, requestTime, store.events[0].Timestamp)
}

func TestEmit_PreservesExistingTimestamp(t *testing.T) {
	store := &captureStore{}
	pub := NewPublisher(store)

	customTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), Event{
		Action:    string(EventReportIssued),
		Timestamp: customTime,
	})
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	assert.Equal(t, customTime, store.events[0].Timestamp)
}

func TestEmit_DerivesCategoryFromAction(t *testing.T) {
	store := &captureStore{}
	pub := NewPublisher(store)

	require.NoError(t, pub.Emit(context.Background(), Event{Action: string(EventReportIssued)}))
	require.NoError(t, pub.Emit(context.Background(), Event{Action: string(EventSectionUpdated)}))
	require.NoError(t, pub.Emit(context.Background(), Event{Action: "something_unknown"}))

	require.Len(t, store.events, 3)
	assert.Equal(t, CategoryCompliance, store.events[0].Category)
	assert.Equal(t, CategoryOperations, store.events[1].Category)
	assert.Equal(t, CategoryOperations, store.events[2].Category)
}

func TestEmit_EnrichesFromContext(t *testing.T) {
	store := &captureStore{}
	pub := NewPublisher(store)

	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	actor := id.UserID(uuid.New())
	err := pub.Emit(ctx, Event{
		Actor:  actor,
		Action: string(EventSectionUpdated),
	})
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	got := store.events[0]
	assert.Equal(t, "req-42", got.RequestID)
	assert.Equal(t, "203.0.113.9", got.ClientIP)
	assert.Contains(t, got.Client, "Chrome")
	assert.Contains(t, got.Client, "Linux")
	assert.Equal(t, actor, got.Actor)
}

func TestEmit_NoClientMetadata(t *testing.T) {
	store := &captureStore{}
	pub := NewPublisher(store)

	err := pub.Emit(context.Background(), Event{Action: string(EventReportCreated)})
	require.NoError(t, err)

	require.Len(t, store.events, 1)
	assert.Empty(t, store.events[0].ClientIP)
	assert.Empty(t, store.events[0].Client)
}
