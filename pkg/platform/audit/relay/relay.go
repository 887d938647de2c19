// Package relay drains the transactional outbox into Kafka. Business
// mutations write audit events to the outbox inside their own transaction;
// the relay publishes them asynchronously, so Kafka being down never blocks
// an issuance.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "attest/pkg/platform/audit"
)

// Entry is one unpublished outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Source supplies unpublished outbox entries and records delivery.
type Source interface {
	ClaimBatch(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Sender delivers a single outbox entry to a topic. The Kafka sender keys the
// message by AggregateID so per-lineage ordering survives partitioning.
type Sender interface {
	Send(ctx context.Context, topic string, key, value []byte) error
}

// Topics routes events to per-category topics.
type Topics struct {
	Compliance string
	Operations string
}

// ForAction resolves the destination topic for an event action.
func (t Topics) ForAction(action string) string {
	if audit.AuditEvent(action).Category() == audit.CategoryCompliance {
		return t.Compliance
	}
	return t.Operations
}

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

type Relay struct {
	source    Source
	sender    Sender
	topics    Topics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		r.interval = d
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		r.batchSize = n
	}
}

func New(source Source, sender Sender, topics Topics, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		sender:    sender,
		topics:    topics,
		logger:    logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until the context is cancelled. It drains whatever is
// pending on each tick; a failed send stops the batch so the remaining
// entries retry on the next tick in their original order.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending entries. Exported so tests and
// shutdown paths can flush without running the poll loop.
func (r *Relay) Drain(ctx context.Context) error {
	entries, err := r.source.ClaimBatch(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	delivered := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		topic := r.topics.ForAction(entry.EventType)
		if err := r.sender.Send(ctx, topic, []byte(entry.AggregateID), entry.Payload); err != nil {
			// Mark what got through, keep the rest for the next tick.
			if len(delivered) > 0 {
				if markErr := r.source.MarkPublished(ctx, delivered); markErr != nil {
					r.logger.ErrorContext(ctx, "failed to mark published entries", "error", markErr)
				}
			}
			return err
		}
		delivered = append(delivered, entry.ID)
	}
	return r.source.MarkPublished(ctx, delivered)
}
