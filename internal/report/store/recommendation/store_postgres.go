package recommendation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"attest/internal/report/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore persists recommendations. Writes carry the same SQL-level
// draft guard as the section store; soft delete only ever flips a flag.
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

const recommendationColumns = `id, document_id, reference_code, reference_seq, first_raised_version, title, priority, status, superseded_by, deleted, created_at, updated_at`

func scanRecommendation(row interface{ Scan(...any) error }) (*models.Recommendation, error) {
	var (
		rec          models.Recommendation
		recID        uuid.UUID
		docID        uuid.UUID
		refCode      sql.NullString
		refSeq       sql.NullInt64
		firstRaised  sql.NullInt64
		supersededBy uuid.NullUUID
	)
	err := row.Scan(&recID, &docID, &refCode, &refSeq, &firstRaised, &rec.Title,
		&rec.Priority, &rec.Status, &supersededBy, &rec.Deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan recommendation: %w", err)
	}
	rec.ID = id.RecommendationID(recID)
	rec.DocumentID = id.DocumentID(docID)
	rec.ReferenceCode = refCode.String
	rec.ReferenceSequence = int(refSeq.Int64)
	rec.FirstRaisedVersion = int(firstRaised.Int64)
	if supersededBy.Valid {
		sb := id.RecommendationID(supersededBy.UUID)
		rec.SupersededBy = &sb
	}
	return &rec, nil
}

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

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.Recommendation) error {
	ex := s.execer(ctx)
	var supersededBy uuid.NullUUID
	if rec.SupersededBy != nil {
		supersededBy = uuid.NullUUID{UUID: uuid.UUID(*rec.SupersededBy), Valid: true}
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO recommendations (id, document_id, reference_code, reference_seq, first_raised_version,
			title, priority, status, superseded_by, deleted, created_at, updated_at)
		SELECT $1, d.id, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		FROM documents d WHERE d.id = $2 AND d.state = 'draft'`,
		uuid.UUID(rec.ID), uuid.UUID(rec.DocumentID), nullString(rec.ReferenceCode),
		nullInt(rec.ReferenceSequence), nullInt(rec.FirstRaisedVersion),
		rec.Title, rec.Priority, rec.Status, supersededBy, rec.Deleted,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create recommendation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return guardViolation(ctx, ex, rec.DocumentID)
	}
	return nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, documentID id.DocumentID) ([]*models.Recommendation, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations
		 WHERE document_id = $1 ORDER BY created_at, id`, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) FindByID(ctx context.Context, recID id.RecommendationID) (*models.Recommendation, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = $1`, uuid.UUID(recID))
	return scanRecommendation(row)
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.Recommendation) error {
	ex := s.execer(ctx)
	var supersededBy uuid.NullUUID
	if rec.SupersededBy != nil {
		supersededBy = uuid.NullUUID{UUID: uuid.UUID(*rec.SupersededBy), Valid: true}
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE recommendations r
		SET reference_code = $3, reference_seq = $4, first_raised_version = $5,
		    title = $6, priority = $7, status = $8, superseded_by = $9, deleted = $10, updated_at = $11
		FROM documents d
		WHERE r.id = $1 AND r.document_id = $2 AND d.id = r.document_id AND d.state = 'draft'`,
		uuid.UUID(rec.ID), uuid.UUID(rec.DocumentID), nullString(rec.ReferenceCode),
		nullInt(rec.ReferenceSequence), nullInt(rec.FirstRaisedVersion),
		rec.Title, rec.Priority, rec.Status, supersededBy, rec.Deleted, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update recommendation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return guardViolation(ctx, ex, rec.DocumentID)
	}
	return nil
}

// UpdateAllocated persists allocator output inside the issuance transaction.
func (s *PostgresStore) UpdateAllocated(ctx context.Context, recs []*models.Recommendation) error {
	for _, rec := range recs {
		if err := s.Update(ctx, rec); err != nil {
			return fmt.Errorf("persist allocation for %s: %w", rec.ID, err)
		}
	}
	return nil
}

// MaxSequence returns the highest reference sequence across the lineage,
// counting soft-deleted rows so burned sequences stay burned.
func (s *PostgresStore) MaxSequence(ctx context.Context, lineageID id.LineageID) (int, error) {
	var max sql.NullInt64
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT MAX(r.reference_seq)
		FROM recommendations r
		JOIN documents d ON d.id = r.document_id
		WHERE d.lineage_id = $1`, uuid.UUID(lineageID)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max reference sequence: %w", err)
	}
	return int(max.Int64), nil
}
