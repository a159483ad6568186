package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codegrader/internal/common/cache"
	"codegrader/internal/common/db"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
	defaultListLimit               = 50
	maxListLimit                   = 200
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("submission already exists")
)

// Submission is a persisted grading record.
type Submission struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ProblemID       string    `json:"problem_id"`
	Code            string    `json:"code"`
	Language        string    `json:"language"`
	Status          string    `json:"status"`
	TestCasesPassed int       `json:"test_cases_passed"`
	TotalTestCases  int       `json:"total_test_cases"`
	Runtime         *float64  `json:"runtime"`
	Memory          *int64    `json:"memory"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Result is the graded part of a submission written by Finalize.
type Result struct {
	Status          string
	TestCasesPassed int
	TotalTestCases  int
	Runtime         *float64
	Memory          *int64
}

// ListFilter narrows ListByUser. Empty ProblemID means all problems.
type ListFilter struct {
	UserID    string
	ProblemID string
	Limit     int
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	UpdateResult(ctx context.Context, tx db.Transaction, submissionID string, result Result) error
	ListByUser(ctx context.Context, filter ListFilter) ([]*Submission, error)
}

// SQLSubmissionRepository implements SubmissionRepository on db.Database
// with a Redis cache-aside layer for single-row reads.
type SQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with default cache TTLs.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *SQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &SQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, code, language, status, test_cases_passed, total_test_cases, runtime, memory, created_at, updated_at"

// Create inserts a submission record. CreatedAt/UpdatedAt are set when zero.
func (r *SQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.UserID == "" {
		return errors.New("userID is required")
	}
	if submission.ProblemID == "" {
		return errors.New("problemID is required")
	}
	if submission.Status == "" {
		return errors.New("status is required")
	}
	now := time.Now().UTC().Truncate(time.Second)
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	if submission.UpdatedAt.IsZero() {
		submission.UpdatedAt = submission.CreatedAt
	}

	query := `
		INSERT INTO submissions
		(id, user_id, problem_id, code, language, status, test_cases_passed, total_test_cases, runtime, memory, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		submission.Code,
		submission.Language,
		submission.Status,
		submission.TestCasesPassed,
		submission.TotalTestCases,
		nullFloat(submission.Runtime),
		nullInt(submission.Memory),
		submission.CreatedAt,
		submission.UpdatedAt,
	)
	if err != nil {
		if key, dup := db.UniqueViolation(err); dup {
			return fmt.Errorf("%w: key %s", ErrSubmissionExists, key)
		}
		return err
	}
	if r.cache != nil && tx == nil {
		r.setCache(ctx, submission)
	}
	return nil
}

// GetByID retrieves a submission by id, reading through the cache outside transactions.
func (r *SQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, submissionID)
	}
	submission, err := cache.GetWithCached[*Submission](
		ctx,
		r.cache,
		submissionCacheKey(submissionID),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(submission *Submission) bool { return submission == nil },
		marshalSubmission,
		unmarshalSubmission,
		func(ctx context.Context) (*Submission, error) {
			submission, err := r.getByIDFromDB(ctx, nil, submissionID)
			if errors.Is(err, ErrSubmissionNotFound) {
				return nil, nil
			}
			return submission, err
		},
	)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

// UpdateResult overwrites the graded fields. Concurrent calls are last write wins.
func (r *SQLSubmissionRepository) UpdateResult(ctx context.Context, tx db.Transaction, submissionID string, result Result) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `
		UPDATE submissions
		SET status = ?, test_cases_passed = ?, total_test_cases = ?, runtime = ?, memory = ?, updated_at = ?
		WHERE id = ?
	`
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(submissionID), func(ctx context.Context) error {
		_, err := db.GetQuerier(r.db, tx).Exec(
			ctx,
			query,
			result.Status,
			result.TestCasesPassed,
			result.TotalTestCases,
			nullFloat(result.Runtime),
			nullInt(result.Memory),
			time.Now().UTC().Truncate(time.Second),
			submissionID,
		)
		return err
	})
}

// ListByUser returns the newest submissions of one user.
func (r *SQLSubmissionRepository) ListByUser(ctx context.Context, filter ListFilter) ([]*Submission, error) {
	if filter.UserID == "" {
		return nil, errors.New("userID is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ?"
	args := []interface{}{filter.UserID}
	if filter.ProblemID != "" {
		query += " AND problem_id = ?"
		args = append(args, filter.ProblemID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func scanSubmission(row db.Row) (*Submission, error) {
	submission := &Submission{}
	var runtime sql.NullFloat64
	var memory sql.NullInt64
	if err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.Code,
		&submission.Language,
		&submission.Status,
		&submission.TestCasesPassed,
		&submission.TotalTestCases,
		&runtime,
		&memory,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if runtime.Valid {
		v := runtime.Float64
		submission.Runtime = &v
	}
	if memory.Valid {
		v := memory.Int64
		submission.Memory = &v
	}
	return submission, nil
}

func (r *SQLSubmissionRepository) setCache(ctx context.Context, submission *Submission) {
	payload := marshalSubmission(submission)
	if payload == "" {
		return
	}
	_ = r.cache.Set(ctx, submissionCacheKey(submission.ID), payload, cache.JitterTTL(r.ttl))
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
