package service

import (
	"context"
	"log/slog"

	"attest/internal/report/models"
	"attest/pkg/platform/audit"
	"attest/pkg/requestcontext"
)

// auditEmitter centralizes structured audit logging and event publishing.
// Lifecycle events (issued, superseded, forked) are fail-closed: emission
// happens inside the transaction and a failed outbox write rolls the
// operation back. Authoring events are best-effort.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emit(ctx context.Context, action audit.AuditEvent, doc *models.Document, decision, reason string) error {
	if e.logger != nil {
		e.logger.InfoContext(ctx, string(action),
			"event", string(action),
			"log_type", "audit",
			"document_id", doc.ID,
			"lineage_id", doc.LineageID,
			"version_number", doc.VersionNumber,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Emit(ctx, audit.Event{
		Actor:         requestcontext.UserID(ctx),
		DocumentID:    doc.ID,
		LineageID:     doc.LineageID,
		VersionNumber: doc.VersionNumber,
		Action:        string(action),
		Decision:      decision,
		Reason:        reason,
	})
}

// emitBestEffort logs publish failures instead of propagating them. Used for
// authoring events where losing a trail entry must not fail the edit.
func (e *auditEmitter) emitBestEffort(ctx context.Context, action audit.AuditEvent, doc *models.Document, decision, reason string) {
	if err := e.emit(ctx, action, doc, decision, reason); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "audit emission failed",
			"event", string(action),
			"document_id", doc.ID,
			"error", err,
		)
	}
}
