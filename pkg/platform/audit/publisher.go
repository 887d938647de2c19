package audit

import (
	"context"
	"fmt"

	"github.com/mssola/useragent"

	"attest/pkg/requestcontext"
)

// Store is the persistence sink for audit events. The production
// implementation writes to the transactional outbox so events commit
// atomically with the business mutation that produced them.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit enriches the event with request metadata from the context and appends
// it to the store. When called inside a transaction the write joins it.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.Category == "" {
		base.Category = AuditEvent(base.Action).Category()
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	if base.ClientIP == "" {
		base.ClientIP = requestcontext.ClientIP(ctx)
	}
	if base.Client == "" {
		base.Client = summarizeClient(requestcontext.UserAgent(ctx))
	}
	return p.store.Append(ctx, base)
}

// summarizeClient condenses a raw User-Agent header into "Browser ver on OS".
// Raw headers are long and high-cardinality; the summary is what reviewers
// actually read in the trail.
func summarizeClient(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		if ua.Bot() {
			return "bot"
		}
		return raw
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}
