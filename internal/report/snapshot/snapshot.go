// Package snapshot serializes a document and everything it owns into the
// opaque blob stored in the revision ledger. The core never interprets the
// blob; it only guarantees a byte-identical round-trip so historical versions
// can be re-rendered exactly as captured.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"attest/internal/report/models"
)

// Snapshot is the serialized shape. Sections and recommendations are sorted
// into a canonical order before encoding so equal inputs produce equal bytes.
type Snapshot struct {
	Document        *models.Document          `json:"document"`
	Sections        []*models.SectionInstance `json:"sections"`
	Recommendations []*models.Recommendation  `json:"recommendations"`
}

// Encode captures a document, its sections and its recommendations.
func Encode(doc *models.Document, sections []*models.SectionInstance, recommendations []*models.Recommendation) ([]byte, error) {
	snap := Snapshot{
		Document:        doc,
		Sections:        append([]*models.SectionInstance(nil), sections...),
		Recommendations: append([]*models.Recommendation(nil), recommendations...),
	}
	sort.SliceStable(snap.Sections, func(i, j int) bool {
		return snap.Sections[i].Key < snap.Sections[j].Key
	})
	sort.SliceStable(snap.Recommendations, func(i, j int) bool {
		a, b := snap.Recommendations[i], snap.Recommendations[j]
		if a.ReferenceSequence != b.ReferenceSequence {
			return a.ReferenceSequence < b.ReferenceSequence
		}
		return a.ID.String() < b.ID.String()
	})

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

// Decode restores a snapshot blob. Decode followed by Encode reproduces the
// original bytes.
func Decode(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
