package section

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

// PostgresStore persists section instances. Every write is guarded in the SQL
// itself: the row only changes when the owning document is still a draft.
// This enforcement is independent of the service precondition, so a bug in
// one layer cannot silently mutate an issued document through the other.
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

const sectionColumns = `id, document_id, section_key, completed_at, outcome, content, created_at, updated_at`

func scanSection(row interface{ Scan(...any) error }) (*models.SectionInstance, error) {
	var (
		sec         models.SectionInstance
		secID       uuid.UUID
		docID       uuid.UUID
		completedAt sql.NullTime
		content     []byte
	)
	err := row.Scan(&secID, &docID, &sec.Key, &completedAt, &sec.Outcome, &content,
		&sec.CreatedAt, &sec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan section: %w", err)
	}
	sec.ID = id.SectionID(secID)
	sec.DocumentID = id.DocumentID(docID)
	if completedAt.Valid {
		t := completedAt.Time
		sec.CompletedAt = &t
	}
	sec.Content = content
	return &sec, nil
}

// guardViolation distinguishes "document missing" from "document locked"
// after a guarded write matched zero rows.
func guardViolation(ctx context.Context, ex dbExecutor, documentID id.DocumentID) error {
	var state models.DocumentState
	err := ex.QueryRowContext(ctx,
		`SELECT state FROM documents WHERE id = $1`, uuid.UUID(documentID)).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check document state: %w", err)
	}
	if state != models.StateDraft {
		return sentinel.ErrInvalidState
	}
	return sentinel.ErrNotFound
}

func (s *PostgresStore) Create(ctx context.Context, sec *models.SectionInstance) error {
	ex := s.execer(ctx)
	var completedAt sql.NullTime
	if sec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *sec.CompletedAt, Valid: true}
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO sections (id, document_id, section_key, completed_at, outcome, content, created_at, updated_at)
		SELECT $1, d.id, $3, $4, $5, $6, $7, $8
		FROM documents d WHERE d.id = $2 AND d.state = 'draft'`,
		uuid.UUID(sec.ID), uuid.UUID(sec.DocumentID), sec.Key, completedAt, sec.Outcome,
		[]byte(sec.Content), sec.CreatedAt, sec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return guardViolation(ctx, ex, sec.DocumentID)
	}
	return nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID id.DocumentID) ([]*models.SectionInstance, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+sectionColumns+` FROM sections WHERE document_id = $1 ORDER BY section_key`,
		uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var sections []*models.SectionInstance
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *PostgresStore) FindByDocumentAndKey(ctx context.Context, documentID id.DocumentID, key string) (*models.SectionInstance, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+sectionColumns+` FROM sections WHERE document_id = $1 AND section_key = $2`,
		uuid.UUID(documentID), key)
	return scanSection(row)
}

func (s *PostgresStore) Update(ctx context.Context, sec *models.SectionInstance) error {
	ex := s.execer(ctx)
	var completedAt sql.NullTime
	if sec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *sec.CompletedAt, Valid: true}
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE sections s
		SET completed_at = $3, outcome = $4, content = $5, updated_at = $6
		FROM documents d
		WHERE s.id = $1 AND s.document_id = $2 AND d.id = s.document_id AND d.state = 'draft'`,
		uuid.UUID(sec.ID), uuid.UUID(sec.DocumentID), completedAt, sec.Outcome,
		[]byte(sec.Content), sec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return guardViolation(ctx, ex, sec.DocumentID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
