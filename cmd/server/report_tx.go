package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/tx"
)

const defaultReportTxTimeout = 5 * time.Second

// reportPostgresTx is the production transactional boundary for the report
// service. The transaction travels through context, so the same tx-aware
// stores serve both transactional and plain calls.
type reportPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newReportPostgresTx(db *sql.DB) *reportPostgresTx {
	return &reportPostgresTx{db: db}
}

func (t *reportPostgresTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultReportTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	return sqlTx.Commit()
}
