package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore persists documents in PostgreSQL. Writes join an in-flight
// transaction when one is carried in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const documentColumns = `id, lineage_id, doc_type, state, version_number, context, change_log, issued_at, issued_by, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		doc        models.Document
		docID      uuid.UUID
		lineageID  uuid.UUID
		rawContext []byte
		issuedAt   sql.NullTime
		issuedBy   uuid.NullUUID
	)
	err := row.Scan(&docID, &lineageID, &doc.Type, &doc.State, &doc.VersionNumber,
		&rawContext, &doc.ChangeLog, &issuedAt, &issuedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.ID = id.DocumentID(docID)
	doc.LineageID = id.LineageID(lineageID)
	doc.Context = map[string]string{}
	if len(rawContext) > 0 {
		if err := json.Unmarshal(rawContext, &doc.Context); err != nil {
			return nil, fmt.Errorf("decode document context: %w", err)
		}
	}
	if issuedAt.Valid {
		t := issuedAt.Time
		doc.IssuedAt = &t
	}
	if issuedBy.Valid {
		doc.IssuedBy = id.UserID(issuedBy.UUID)
	}
	return &doc, nil
}

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	rawContext, err := json.Marshal(doc.Context)
	if err != nil {
		return fmt.Errorf("encode document context: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (id, lineage_id, doc_type, state, version_number, context, change_log, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(doc.ID), uuid.UUID(doc.LineageID), doc.Type, doc.State, doc.VersionNumber,
		rawContext, doc.ChangeLog, doc.CreatedAt, doc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, uuid.UUID(documentID))
	return scanDocument(row)
}

func (s *PostgresStore) FindLineageHead(ctx context.Context, lineageID id.LineageID) (*models.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE lineage_id = $1 ORDER BY version_number DESC LIMIT 1`, uuid.UUID(lineageID))
	return scanDocument(row)
}

func (s *PostgresStore) FindIssued(ctx context.Context, lineageID id.LineageID) (*models.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE lineage_id = $1 AND state = $2`, uuid.UUID(lineageID), models.StateIssued)
	return scanDocument(row)
}

// Execute loads the document with SELECT ... FOR UPDATE, runs check, applies
// mutate, and writes the result. Inside a transaction the row lock holds
// until commit, so a concurrent issuance on the same document blocks here and
// then observes the flipped state in its own check.
func (s *PostgresStore) Execute(
	ctx context.Context,
	documentID id.DocumentID,
	check func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	run := func(ctx context.Context, ex dbExecutor) (*models.Document, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, uuid.UUID(documentID))
		doc, err := scanDocument(row)
		if err != nil {
			return nil, err
		}
		if err := check(doc); err != nil {
			return nil, err
		}
		mutate(doc)

		rawContext, err := json.Marshal(doc.Context)
		if err != nil {
			return nil, fmt.Errorf("encode document context: %w", err)
		}
		var issuedAt sql.NullTime
		if doc.IssuedAt != nil {
			issuedAt = sql.NullTime{Time: *doc.IssuedAt, Valid: true}
		}
		var issuedBy uuid.NullUUID
		if !doc.IssuedBy.IsNil() {
			issuedBy = uuid.NullUUID{UUID: uuid.UUID(doc.IssuedBy), Valid: true}
		}
		_, err = ex.ExecContext(ctx, `
			UPDATE documents
			SET state = $2, version_number = $3, context = $4, change_log = $5,
			    issued_at = $6, issued_by = $7, updated_at = $8
			WHERE id = $1`,
			uuid.UUID(doc.ID), doc.State, doc.VersionNumber, rawContext, doc.ChangeLog,
			issuedAt, issuedBy, doc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("update document: %w", err)
		}
		return doc, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	// No ambient transaction: open a short one so the FOR UPDATE lock spans
	// the read-modify-write cycle.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	doc, err := run(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document tx: %w", err)
	}
	return doc, nil
}

// StateOf reads just the lifecycle state; sibling stores use it for guard
// checks outside transactions.
func (s *PostgresStore) StateOf(ctx context.Context, documentID id.DocumentID) (models.DocumentState, error) {
	var state models.DocumentState
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT state FROM documents WHERE id = $1`, uuid.UUID(documentID)).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read document state: %w", err)
	}
	return state, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
