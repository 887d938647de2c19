package revision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore is the durable revision ledger. The schema carries a unique
// constraint on (lineage_id, version_number); the store exposes no update or
// delete, so rows are immutable once committed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const revisionColumns = `id, lineage_id, version_number, status, snapshot, issued_at, issued_by`

func scanRevision(row interface{ Scan(...any) error }) (*models.RevisionRecord, error) {
	var (
		rev       models.RevisionRecord
		revID     uuid.UUID
		lineageID uuid.UUID
		issuedBy  uuid.UUID
	)
	err := row.Scan(&revID, &lineageID, &rev.VersionNumber, &rev.Status, &rev.Snapshot,
		&rev.IssuedAt, &issuedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan revision: %w", err)
	}
	rev.ID = id.RevisionID(revID)
	rev.LineageID = id.LineageID(lineageID)
	rev.IssuedBy = id.UserID(issuedBy)
	return &rev, nil
}

// Append inserts a revision row. A duplicate (lineage, version) surfaces as
// ErrConflict: that is the database refusing a double issuance.
func (s *PostgresStore) Append(ctx context.Context, rev *models.RevisionRecord) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO revisions (id, lineage_id, version_number, status, snapshot, issued_at, issued_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(rev.ID), uuid.UUID(rev.LineageID), rev.VersionNumber, rev.Status,
		rev.Snapshot, rev.IssuedAt, uuid.UUID(rev.IssuedBy),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, lineageID id.LineageID) (*models.RevisionRecord, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions
		 WHERE lineage_id = $1 ORDER BY version_number DESC LIMIT 1`, uuid.UUID(lineageID))
	return scanRevision(row)
}

func (s *PostgresStore) At(ctx context.Context, lineageID id.LineageID, versionNumber int) (*models.RevisionRecord, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions
		 WHERE lineage_id = $1 AND version_number = $2`, uuid.UUID(lineageID), versionNumber)
	return scanRevision(row)
}

func (s *PostgresStore) ListByLineage(ctx context.Context, lineageID id.LineageID) ([]*models.RevisionRecord, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions
		 WHERE lineage_id = $1 ORDER BY version_number`, uuid.UUID(lineageID))
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []*models.RevisionRecord
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}
