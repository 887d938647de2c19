package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/report/models"
	id "attest/pkg/domain"
)

func TestRoundTrip(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	doc, err := models.NewDocument(id.DocumentID(uuid.New()), "security_assessment",
		map[string]string{"scope": "full"}, now)
	require.NoError(t, err)

	section := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "scope", now)
	section.Content = json.RawMessage(`{"narrative":"all production systems","attachments":[3,1,2]}`)
	section.CompletedAt = &now
	section.Outcome = models.OutcomeSatisfactory

	rec, err := models.NewRecommendation(id.RecommendationID(uuid.New()), doc.ID,
		"Enable MFA on admin accounts", models.PriorityCritical, now)
	require.NoError(t, err)
	rec.ReferenceCode = "R-01"
	rec.ReferenceSequence = 1
	rec.FirstRaisedVersion = 1

	raw, err := Encode(doc, []*models.SectionInstance{section}, []*models.Recommendation{rec})
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	again, err := Encode(decoded.Document, decoded.Sections, decoded.Recommendations)
	require.NoError(t, err)
	assert.Equal(t, raw, again, "decode then encode must be byte-identical")

	// Section payloads pass through uninterpreted.
	require.Len(t, decoded.Sections, 1)
	assert.JSONEq(t, string(section.Content), string(decoded.Sections[0].Content))
}

func TestEncodeIsOrderInsensitive(t *testing.T) {
	now := time.Now().UTC()
	doc, err := models.NewDocument(id.DocumentID(uuid.New()), "security_assessment", nil, now)
	require.NoError(t, err)

	a := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "methodology", now)
	b := models.NewSectionInstance(id.SectionID(uuid.New()), doc.ID, "scope", now)

	first, err := Encode(doc, []*models.SectionInstance{a, b}, nil)
	require.NoError(t, err)
	second, err := Encode(doc, []*models.SectionInstance{b, a}, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "input ordering must not leak into the blob")
}
