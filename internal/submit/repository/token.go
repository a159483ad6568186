package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"codegrader/internal/common/db"
)

// SubmissionToken correlates a judge job with the test case it runs.
// ExpectedOutput is nil when the caller did not hand it over at submit time.
type SubmissionToken struct {
	SubmissionID   string
	CaseIndex      int
	Token          string
	ExpectedOutput *string
	CreatedAt      time.Time
}

// TokenRepository persists judge tokens of pending submissions.
type TokenRepository interface {
	CreateBatch(ctx context.Context, tx db.Transaction, tokens []SubmissionToken) error
	ListBySubmission(ctx context.Context, tx db.Transaction, submissionID string) ([]SubmissionToken, error)
}

// SQLTokenRepository implements TokenRepository on db.Database.
type SQLTokenRepository struct {
	db db.Database
}

func NewTokenRepository(database db.Database) *SQLTokenRepository {
	return &SQLTokenRepository{db: database}
}

// CreateBatch inserts all tokens with one multi-row INSERT.
func (r *SQLTokenRepository) CreateBatch(ctx context.Context, tx db.Transaction, tokens []SubmissionToken) error {
	if len(tokens) == 0 {
		return nil
	}
	now := time.Now().UTC().Truncate(time.Second)
	var b strings.Builder
	b.WriteString("INSERT INTO submission_tokens (submission_id, case_index, token, expected_output, created_at) VALUES ")
	args := make([]interface{}, 0, len(tokens)*5)
	for i, t := range tokens {
		if t.SubmissionID == "" || t.Token == "" {
			return errors.New("submissionID and token are required")
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		var expected interface{}
		if t.ExpectedOutput != nil {
			expected = *t.ExpectedOutput
		}
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		args = append(args, t.SubmissionID, t.CaseIndex, t.Token, expected, created)
	}
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, b.String(), args...)
	return err
}

// ListBySubmission returns tokens ordered by case index.
func (r *SQLTokenRepository) ListBySubmission(ctx context.Context, tx db.Transaction, submissionID string) ([]SubmissionToken, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := `
		SELECT submission_id, case_index, token, expected_output, created_at
		FROM submission_tokens
		WHERE submission_id = ?
		ORDER BY case_index ASC
	`
	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SubmissionToken
	for rows.Next() {
		var t SubmissionToken
		var expected sql.NullString
		if err := rows.Scan(&t.SubmissionID, &t.CaseIndex, &t.Token, &expected, &t.CreatedAt); err != nil {
			return nil, err
		}
		if expected.Valid {
			v := expected.String
			t.ExpectedOutput = &v
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
