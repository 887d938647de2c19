package allocator

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/report/models"
	id "attest/pkg/domain"
)

func newRec(t *testing.T, createdAt time.Time) *models.Recommendation {
	t.Helper()
	rec, err := models.NewRecommendation(
		id.RecommendationID(uuid.New()),
		id.DocumentID(uuid.New()),
		"Harden access controls",
		models.PriorityMedium,
		createdAt,
	)
	require.NoError(t, err)
	return rec
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "R-01", FormatCode(1))
	assert.Equal(t, "R-07", FormatCode(7))
	assert.Equal(t, "R-42", FormatCode(42))
	assert.Equal(t, "R-123", FormatCode(123))
}

func TestAllocate(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("new recommendations get consecutive codes in creation order", func(t *testing.T) {
		second := newRec(t, base.Add(time.Hour))
		first := newRec(t, base)
		Allocate([]*models.Recommendation{second, first}, 0, 1, base.Add(2*time.Hour))

		assert.Equal(t, "R-01", first.ReferenceCode)
		assert.Equal(t, 1, first.FirstRaisedVersion)
		assert.Equal(t, "R-02", second.ReferenceCode)
		assert.Equal(t, 1, second.FirstRaisedVersion)
	})

	t.Run("inherited codes are untouched", func(t *testing.T) {
		inherited := newRec(t, base)
		inherited.ReferenceCode = "R-03"
		inherited.ReferenceSequence = 3
		inherited.FirstRaisedVersion = 1
		fresh := newRec(t, base.Add(time.Minute))

		Allocate([]*models.Recommendation{inherited, fresh}, 3, 2, base.Add(time.Hour))

		assert.Equal(t, "R-03", inherited.ReferenceCode)
		assert.Equal(t, 1, inherited.FirstRaisedVersion)
		assert.Equal(t, "R-04", fresh.ReferenceCode)
		assert.Equal(t, 2, fresh.FirstRaisedVersion)
	})

	t.Run("sequence never regresses past deleted rows", func(t *testing.T) {
		deleted := newRec(t, base)
		deleted.ReferenceCode = "R-05"
		deleted.ReferenceSequence = 5
		deleted.MarkDeleted(base.Add(time.Minute))
		fresh := newRec(t, base.Add(2*time.Minute))

		all := []*models.Recommendation{deleted, fresh}
		Allocate(all, MaxSequence(all), 3, base.Add(time.Hour))

		assert.Equal(t, "R-06", fresh.ReferenceCode, "deleted sequence numbers stay burned")
	})

	t.Run("creation-time ties break on row id", func(t *testing.T) {
		a := newRec(t, base)
		b := newRec(t, base)
		Allocate([]*models.Recommendation{a, b}, 0, 1, base)
		Allocate([]*models.Recommendation{b, a}, 0, 1, base)
		// Codes already allocated by the first call; second call must not touch them.
		codes := map[string]bool{a.ReferenceCode: true, b.ReferenceCode: true}
		assert.Equal(t, map[string]bool{"R-01": true, "R-02": true}, codes)
	})
}
