package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"codegrader/internal/common/cache"
	"codegrader/internal/common/db"
	"codegrader/internal/common/mq"
	"codegrader/internal/common/storage"
	"codegrader/internal/judge/model"
	judgesvc "codegrader/internal/judge/service"
	"codegrader/internal/submit/grading"
	"codegrader/internal/submit/repository"
	appErr "codegrader/pkg/errors"
	"codegrader/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix   = "submit:idempotency:"
	processingMarker       = "processing"
	defaultSourcePrefix    = "submissions"
	defaultMaxCodeBytes    = 256 << 10
	defaultIdempotencyTTL  = 10 * time.Minute
	defaultBatchMaxSize    = 20
	defaultBatchConcurrent = 5
)

// DefaultBatchStagger is the per-item delay used when none is configured.
const DefaultBatchStagger = 20 * time.Millisecond

// Dispatcher fans source code out to the judge.
type Dispatcher interface {
	Dispatch(ctx context.Context, sourceCode, languageID string, testInputs []string) (judgesvc.DispatchResult, error)
}

// ResultFetcher reads judge results for tokens in order.
type ResultFetcher interface {
	FetchResults(ctx context.Context, tokens []string) ([]model.JudgeResult, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds submit service dependencies and settings.
// Cache, Storage and Producer are optional.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	TokenRepo      repository.TokenRepository
	Tx             TxRunner
	Dispatcher     Dispatcher
	Fetcher        ResultFetcher
	Cache          cache.Cache
	Storage        storage.ObjectStorage
	Producer       mq.Producer

	Comparison       string
	SourceBucket     string
	SourceKeyPrefix  string
	EventsTopic      string
	MaxCodeBytes     int
	IdempotencyTTL   time.Duration
	BatchMaxSize     int
	BatchConcurrency int
	BatchStagger     time.Duration
	Timeouts         TimeoutConfig
}

// SubmitService owns the submission lifecycle: pending rows created on
// submit, finalized from judge results, or recorded terminal in batches.
type SubmitService struct {
	submissions repository.SubmissionRepository
	tokens      repository.TokenRepository
	tx          TxRunner
	dispatcher  Dispatcher
	fetcher     ResultFetcher
	cache       cache.Cache
	storage     storage.ObjectStorage
	producer    mq.Producer
	evaluator   *grading.Evaluator
	encoder     *zstd.Encoder

	sourceBucket     string
	sourceKeyPrefix  string
	eventsTopic      string
	maxCodeBytes     int
	idempotencyTTL   time.Duration
	batchMaxSize     int
	batchConcurrency int
	batchStagger     time.Duration
	timeouts         TimeoutConfig
}

// NewSubmitService validates dependencies and applies defaults.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, errors.New("submission repository is required")
	}
	if cfg.TokenRepo == nil {
		return nil, errors.New("token repository is required")
	}
	if cfg.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("result fetcher is required")
	}
	if cfg.Storage != nil && cfg.SourceBucket == "" {
		return nil, errors.New("source bucket is required when storage is configured")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = defaultBatchMaxSize
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrent
	}
	if cfg.BatchStagger < 0 {
		cfg.BatchStagger = 0
	}

	svc := &SubmitService{
		submissions:      cfg.SubmissionRepo,
		tokens:           cfg.TokenRepo,
		tx:               cfg.Tx,
		dispatcher:       cfg.Dispatcher,
		fetcher:          cfg.Fetcher,
		cache:            cfg.Cache,
		storage:          cfg.Storage,
		producer:         cfg.Producer,
		evaluator:        grading.NewEvaluator(cfg.Comparison),
		sourceBucket:     cfg.SourceBucket,
		sourceKeyPrefix:  strings.TrimRight(cfg.SourceKeyPrefix, "/"),
		eventsTopic:      cfg.EventsTopic,
		maxCodeBytes:     cfg.MaxCodeBytes,
		idempotencyTTL:   cfg.IdempotencyTTL,
		batchMaxSize:     cfg.BatchMaxSize,
		batchConcurrency: cfg.BatchConcurrency,
		batchStagger:     cfg.BatchStagger,
		timeouts:         cfg.Timeouts,
	}
	if svc.storage != nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		svc.encoder = enc
	}
	return svc, nil
}

// SubmitInput describes one graded submission request.
type SubmitInput struct {
	UserID          string
	ProblemID       string
	SourceCode      string
	LanguageID      string
	TopCode         string
	BottomCode      string
	TestInputs      []string
	ExpectedOutputs []string
	IdempotencyKey  string
}

// SubmitOutput is the pending submission and the accepted job tokens.
type SubmitOutput struct {
	Submission      *repository.Submission `json:"submission"`
	Tokens          []string               `json:"tokens"`
	DispatchedCount int                    `json:"dispatched_count"`
}

// SubmitForGrading merges the harness, dispatches one job per test input and
// records a pending submission with its tokens. Nothing is written when
// dispatch fails, so an exhausted dispatch leaves no orphan row.
func (s *SubmitService) SubmitForGrading(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	if err := s.validateSubmit(input); err != nil {
		return SubmitOutput{}, err
	}

	idemKey := ""
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" && s.cache != nil {
		idemKey = idempotencyKeyPrefix + input.UserID + ":" + key
		existing, reserved, err := s.reserveIdempotency(ctx, idemKey)
		if err != nil {
			return SubmitOutput{}, err
		}
		if !reserved {
			return s.replaySubmit(ctx, input.UserID, existing)
		}
	}

	out, err := s.submit(ctx, input)
	if idemKey != "" {
		if err != nil {
			s.releaseIdempotency(ctx, idemKey)
		} else {
			s.completeIdempotency(ctx, idemKey, out.Submission.ID)
		}
	}
	return out, err
}

func (s *SubmitService) submit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	source := judgesvc.MergeCode(input.TopCode, input.SourceCode, input.BottomCode)
	dispatched, err := s.dispatcher.Dispatch(ctx, source, input.LanguageID, input.TestInputs)
	if err != nil {
		return SubmitOutput{}, err
	}

	submission := &repository.Submission{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		ProblemID:      input.ProblemID,
		Code:           input.SourceCode,
		Language:       dispatched.Language.Tag,
		Status:         grading.StatusPending,
		TotalTestCases: dispatched.DispatchedCount,
	}
	tokens := make([]repository.SubmissionToken, 0, len(dispatched.Jobs))
	for _, job := range dispatched.Jobs {
		t := repository.SubmissionToken{
			SubmissionID: submission.ID,
			CaseIndex:    job.Index,
			Token:        job.Token,
		}
		if job.Index < len(input.ExpectedOutputs) {
			expected := input.ExpectedOutputs[job.Index]
			t.ExpectedOutput = &expected
		}
		tokens = append(tokens, t)
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	err = s.tx.Transaction(ctxDB.ctx, func(tx db.Transaction) error {
		if err := s.submissions.Create(ctxDB.ctx, tx, submission); err != nil {
			return err
		}
		return s.tokens.CreateBatch(ctxDB.ctx, tx, tokens)
	})
	if err != nil {
		return SubmitOutput{}, createFailure(err)
	}

	s.archiveSource(ctx, submission.ID, source)
	logger.Info(ctx, "submission dispatched",
		zap.String("submission_id", submission.ID),
		zap.String("problem_id", submission.ProblemID),
		zap.Int("accepted", len(dispatched.Tokens)),
		zap.Int("dispatched", dispatched.DispatchedCount),
	)
	return SubmitOutput{
		Submission:      submission,
		Tokens:          dispatched.Tokens,
		DispatchedCount: dispatched.DispatchedCount,
	}, nil
}

func (s *SubmitService) validateSubmit(input SubmitInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return appErr.UnauthorizedError("missing user identity")
	}
	if strings.TrimSpace(input.ProblemID) == "" {
		return appErr.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if strings.TrimSpace(input.LanguageID) == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if len(input.SourceCode)+len(input.TopCode)+len(input.BottomCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("limit_bytes", s.maxCodeBytes)
	}
	cases := len(input.TestInputs)
	if cases == 0 {
		cases = 1
	}
	if len(input.ExpectedOutputs) > 0 && len(input.ExpectedOutputs) != cases {
		return appErr.ValidationError("expected_outputs", "length must match stdin")
	}
	return nil
}

// reserveIdempotency claims key. When the key already points at a finished
// submission its id is returned with reserved=false.
func (s *SubmitService) reserveIdempotency(ctx context.Context, key string) (string, bool, error) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	ok, err := s.cache.SetNX(ctxCache.ctx, key, processingMarker, s.idempotencyTTL)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return "", true, nil
	}
	existing, err := s.cache.Get(ctxCache.ctx, key)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing == "" || existing == processingMarker {
		return "", false, appErr.New(appErr.DuplicateSubmission)
	}
	return existing, false, nil
}

func (s *SubmitService) completeIdempotency(ctx context.Context, key, submissionID string) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, key, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "store idempotency result failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, key string) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, key); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.String("key", key), zap.Error(err))
	}
}

// replaySubmit answers a repeated request with the submission created the first time.
func (s *SubmitService) replaySubmit(ctx context.Context, userID, submissionID string) (SubmitOutput, error) {
	submission, err := s.Get(ctx, userID, submissionID)
	if err != nil {
		return SubmitOutput{}, err
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	stored, err := s.tokens.ListBySubmission(ctxDB.ctx, nil, submissionID)
	if err != nil {
		return SubmitOutput{}, appErr.Wrapf(err, appErr.DatabaseError, "load submission tokens failed")
	}
	tokens := make([]string, 0, len(stored))
	for _, t := range stored {
		tokens = append(tokens, t.Token)
	}
	return SubmitOutput{
		Submission:      submission,
		Tokens:          tokens,
		DispatchedCount: submission.TotalTestCases,
	}, nil
}

// Get returns a submission owned by userID. Other users' rows look missing.
func (s *SubmitService) Get(ctx context.Context, userID, submissionID string) (*repository.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissions.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	if submission.UserID != userID {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return submission, nil
}

// List returns the caller's newest submissions, optionally for one problem.
func (s *SubmitService) List(ctx context.Context, userID, problemID string, limit int) ([]*repository.Submission, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErr.UnauthorizedError("missing user identity")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	items, err := s.submissions.ListByUser(ctxDB.ctx, repository.ListFilter{
		UserID:    userID,
		ProblemID: strings.TrimSpace(problemID),
		Limit:     limit,
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return items, nil
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}

func createFailure(err error) error {
	if errors.Is(err, repository.ErrSubmissionExists) {
		return appErr.Wrapf(err, appErr.RecordAlreadyExists, "submission already exists")
	}
	return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
}
