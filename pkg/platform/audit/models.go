package audit

import (
	"time"

	id "attest/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: issuance,
	// supersession, and anything else that changes what the official record of
	// an assessment says. These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine authoring activity useful for debugging
	// and operational visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category      EventCategory
	Timestamp     time.Time
	Actor         id.UserID
	DocumentID    id.DocumentID
	LineageID     id.LineageID
	VersionNumber int
	Action        string
	Decision      string
	Reason        string
	RequestID     string
	ClientIP      string
	// Client is a human-readable browser/OS summary derived from the
	// request's User-Agent header, not the raw header value.
	Client string
}

type AuditEvent string

const (
	// Lifecycle events
	EventReportCreated    AuditEvent = "report_created"
	EventReportIssued     AuditEvent = "report_issued"
	EventReportSuperseded AuditEvent = "report_superseded"
	EventVersionForked    AuditEvent = "report_version_forked"

	// Authoring events
	EventSectionUpdated              AuditEvent = "section_updated"
	EventContextUpdated              AuditEvent = "context_updated"
	EventRecommendationAdded         AuditEvent = "recommendation_added"
	EventRecommendationStatusChanged AuditEvent = "recommendation_status_changed"
	EventRecommendationDeleted       AuditEvent = "recommendation_deleted"

	// Read-side events
	EventReadinessChecked AuditEvent = "readiness_checked"
)

// eventCategories maps each audit event to its category.
// Compliance: changes the official record, tamper-proof storage required.
// Operations: authoring activity, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventReportIssued:     CategoryCompliance,
	EventReportSuperseded: CategoryCompliance,
	EventVersionForked:    CategoryCompliance,

	EventReportCreated:               CategoryOperations,
	EventSectionUpdated:              CategoryOperations,
	EventRecommendationAdded:         CategoryOperations,
	EventRecommendationStatusChanged: CategoryOperations,
	EventRecommendationDeleted:       CategoryOperations,
	EventReadinessChecked:            CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
