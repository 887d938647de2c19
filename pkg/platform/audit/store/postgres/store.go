package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "attest/pkg/domain"
	audit "attest/pkg/platform/audit"
	txcontext "attest/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the relay.
// Writing through the ambient transaction means an issuance and its audit
// trail commit or roll back together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
// Field names match audit.Event for deserialization by the consumer.
type outboxPayload struct {
	ID            string `json:"ID"`
	Category      string `json:"Category"`
	Timestamp     string `json:"Timestamp"`
	Actor         string `json:"Actor,omitempty"`
	DocumentID    string `json:"DocumentID,omitempty"`
	LineageID     string `json:"LineageID,omitempty"`
	VersionNumber int    `json:"VersionNumber,omitempty"`
	Action        string `json:"Action"`
	Decision      string `json:"Decision,omitempty"`
	Reason        string `json:"Reason,omitempty"`
	RequestID     string `json:"RequestID,omitempty"`
	ClientIP      string `json:"ClientIP,omitempty"`
	Client        string `json:"Client,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	payload := outboxPayload{
		ID:            eventID.String(),
		Category:      string(category),
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		Action:        event.Action,
		Decision:      event.Decision,
		Reason:        event.Reason,
		RequestID:     event.RequestID,
		ClientIP:      event.ClientIP,
		Client:        event.Client,
		VersionNumber: event.VersionNumber,
	}
	if !event.Actor.IsNil() {
		payload.Actor = event.Actor.String()
	}
	if !event.DocumentID.IsNil() {
		payload.DocumentID = event.DocumentID.String()
	}
	if !event.LineageID.IsNil() {
		payload.LineageID = event.LineageID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	// Events about a document aggregate under its lineage so the relay keys
	// Kafka messages by lineage and replays stay ordered per report line.
	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.LineageID.IsNil() {
		aggregateType = "lineage"
		aggregateID = event.LineageID.String()
	}

	execer := s.execer(ctx)

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = execer.ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	// The queryable trail and the outbox row commit together; the relay only
	// handles delivery to Kafka.
	var actor, documentID, lineageID *uuid.UUID
	if !event.Actor.IsNil() {
		u := uuid.UUID(event.Actor)
		actor = &u
	}
	if !event.DocumentID.IsNil() {
		u := uuid.UUID(event.DocumentID)
		documentID = &u
	}
	if !event.LineageID.IsNil() {
		u := uuid.UUID(event.LineageID)
		lineageID = &u
	}

	_, err = execer.ExecContext(ctx, `
		INSERT INTO audit_events (id, category, timestamp, actor, document_id, lineage_id,
			version_number, action, decision, reason, request_id, client_ip, client)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		eventID,
		string(category),
		event.Timestamp,
		actor,
		documentID,
		lineageID,
		event.VersionNumber,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.Client,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByLineage returns events recorded for a report lineage, newest first.
// Reads go against the materialized audit_events table, not the outbox.
func (s *Store) ListByLineage(ctx context.Context, lineageID id.LineageID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, actor, document_id, lineage_id, version_number,
			   action, decision, reason, request_id, client_ip, client
		FROM audit_events
		WHERE lineage_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(lineageID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			category   string
			event      audit.Event
			actor      *uuid.UUID
			documentID *uuid.UUID
			lineageID  *uuid.UUID
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&actor,
			&documentID,
			&lineageID,
			&event.VersionNumber,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.Client,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if actor != nil {
			event.Actor = id.UserID(*actor)
		}
		if documentID != nil {
			event.DocumentID = id.DocumentID(*documentID)
		}
		if lineageID != nil {
			event.LineageID = id.LineageID(*lineageID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
