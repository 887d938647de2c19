package service

import (
	"context"
	"sync"
	"time"

	dErrors "attest/pkg/domain-errors"
)

// StoreTx provides the transactional boundary for issuance and forking. The
// production implementation opens a database transaction and threads it
// through the context so every store write inside fn joins it; the in-memory
// implementation serializes on a lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// defaultTxTimeout bounds how long an issuance transaction may run.
const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx serializes transactional sections with a single mutex.
// Coarse, but issuance is rare relative to authoring reads, and the coarse
// lock gives the same one-winner guarantee the database provides with row
// locks and the ledger's unique constraint.
type inMemoryStoreTx struct {
	mu      sync.Mutex
	timeout time.Duration
}

func newInMemoryStoreTx() *inMemoryStoreTx {
	return &inMemoryStoreTx{}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}
