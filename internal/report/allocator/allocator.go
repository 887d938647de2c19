// Package allocator assigns stable, lineage-scoped reference codes to
// recommendations at issuance time. Codes are allocated once, survive every
// future version of the lineage, and are never recycled: soft-deleted
// recommendations keep their row, so their sequence number stays burned.
package allocator

import (
	"fmt"
	"sort"
	"time"

	"attest/internal/report/models"
)

// FormatCode renders a sequence number as a human-readable reference code.
// Width is two ("R-07"); sequences past 99 grow naturally ("R-123").
func FormatCode(sequence int) string {
	return fmt.Sprintf("R-%02d", sequence)
}

// Allocate assigns codes to every recommendation that lacks one.
//
// Inherited recommendations (those already carrying a code) are untouched.
// New ones receive consecutive sequence numbers starting after maxSequence,
// the highest sequence ever allocated anywhere in the lineage. Allocation
// order is creation time, then row ID, so repeated runs over the same input
// are deterministic. first_raised_version is set exactly once, here.
func Allocate(recommendations []*models.Recommendation, maxSequence, versionNumber int, now time.Time) {
	var unallocated []*models.Recommendation
	for _, rec := range recommendations {
		if !rec.HasReferenceCode() {
			unallocated = append(unallocated, rec)
		}
	}
	sort.SliceStable(unallocated, func(i, j int) bool {
		a, b := unallocated[i], unallocated[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	next := maxSequence
	for _, rec := range unallocated {
		next++
		rec.ReferenceSequence = next
		rec.ReferenceCode = FormatCode(next)
		rec.FirstRaisedVersion = versionNumber
		rec.UpdatedAt = now
	}
}

// MaxSequence returns the highest allocated sequence in a recommendation set,
// counting soft-deleted rows. In-memory stores use this; postgres computes
// the same aggregate in SQL.
func MaxSequence(recommendations []*models.Recommendation) int {
	best := 0
	for _, rec := range recommendations {
		if rec.ReferenceSequence > best {
			best = rec.ReferenceSequence
		}
	}
	return best
}
