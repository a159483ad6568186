package service

import (
	"context"
	"strings"
	"time"

	"codegrader/internal/judge/model"
	"codegrader/internal/submit/grading"
	"codegrader/internal/submit/repository"
	appErr "codegrader/pkg/errors"
	"codegrader/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchItem is one already-graded submission to record. When Results is
// set the outcome is computed from Results and ExpectedOutputs; otherwise
// the supplied counts and metrics are used.
type BatchItem struct {
	ProblemID       string
	SourceCode      string
	Language        string
	TestCasesPassed int
	TotalTestCases  int
	Runtime         *float64
	Memory          *int64
	Results         []model.JudgeResult
	ExpectedOutputs []string
}

// BatchFailure reports why the item at Index was not recorded.
type BatchFailure struct {
	Index int              `json:"index"`
	Error string           `json:"error"`
	Code  appErr.ErrorCode `json:"code"`
}

// BatchOutput lists recorded submissions in input order and the failures.
type BatchOutput struct {
	Successful []*repository.Submission `json:"successful"`
	Failed     []BatchFailure           `json:"failed"`
}

// BatchCreate records up to the configured limit of terminal submissions.
// Items are independent: one failing item never aborts the others.
func (s *SubmitService) BatchCreate(ctx context.Context, userID string, items []BatchItem) (BatchOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return BatchOutput{}, appErr.UnauthorizedError("missing user identity")
	}
	if len(items) == 0 {
		return BatchOutput{}, appErr.ValidationError("submissions", "required")
	}
	if len(items) > s.batchMaxSize {
		return BatchOutput{}, appErr.BatchTooLargeError(len(items), s.batchMaxSize)
	}

	created := make([]*repository.Submission, len(items))
	failures := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := s.stagger(ctx, i); err != nil {
				failures[i] = err
				return nil
			}
			submission, err := s.recordItem(ctx, userID, item)
			if err != nil {
				logger.Warn(ctx, "batch item rejected", zap.Int("index", i), zap.Error(err))
				failures[i] = err
				return nil
			}
			created[i] = submission
			return nil
		})
	}
	_ = g.Wait()

	out := BatchOutput{
		Successful: make([]*repository.Submission, 0, len(items)),
		Failed:     make([]BatchFailure, 0),
	}
	for i := range items {
		if failures[i] != nil {
			out.Failed = append(out.Failed, BatchFailure{
				Index: i,
				Error: failures[i].Error(),
				Code:  appErr.GetCode(failures[i]),
			})
			continue
		}
		out.Successful = append(out.Successful, created[i])
	}
	logger.Info(ctx, "batch recorded",
		zap.Int("total", len(items)),
		zap.Int("successful", len(out.Successful)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}

// stagger delays item i by i*batchStagger to spread writes.
func (s *SubmitService) stagger(ctx context.Context, index int) error {
	delay := time.Duration(index) * s.batchStagger
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "batch canceled")
	case <-timer.C:
		return nil
	}
}

func (s *SubmitService) recordItem(ctx context.Context, userID string, item BatchItem) (*repository.Submission, error) {
	if strings.TrimSpace(item.ProblemID) == "" {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(item.SourceCode) == "" {
		return nil, appErr.ValidationError("source_code", "required")
	}
	if strings.TrimSpace(item.Language) == "" {
		return nil, appErr.ValidationError("language", "required")
	}
	if len(item.SourceCode) > s.maxCodeBytes {
		return nil, appErr.New(appErr.CodeTooLarge).WithDetail("limit_bytes", s.maxCodeBytes)
	}
	lang, err := model.ResolveLanguage(item.Language)
	if err != nil {
		return nil, err
	}
	result, err := s.itemResult(item)
	if err != nil {
		return nil, err
	}

	submission := &repository.Submission{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProblemID:       item.ProblemID,
		Code:            item.SourceCode,
		Language:        lang.Tag,
		Status:          result.Status,
		TestCasesPassed: result.TestCasesPassed,
		TotalTestCases:  result.TotalTestCases,
		Runtime:         result.Runtime,
		Memory:          result.Memory,
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissions.Create(ctxDB.ctx, nil, submission); err != nil {
		return nil, createFailure(err)
	}
	s.publishGraded(ctx, submission, eventSourceBatch)
	return submission, nil
}

func (s *SubmitService) itemResult(item BatchItem) (repository.Result, error) {
	if len(item.Results) > 0 {
		if len(item.Results) != len(item.ExpectedOutputs) {
			return repository.Result{}, appErr.ValidationError("expected_outputs", "length must match results")
		}
		outcome := s.evaluator.Evaluate(item.Results, item.ExpectedOutputs)
		runtime := outcome.TotalRuntime
		memory := outcome.AvgMemory
		return repository.Result{
			Status:          outcome.Status,
			TestCasesPassed: outcome.TestCasesPassed,
			TotalTestCases:  outcome.TotalTestCases,
			Runtime:         &runtime,
			Memory:          &memory,
		}, nil
	}

	if item.TestCasesPassed < 0 || item.TotalTestCases < 0 {
		return repository.Result{}, appErr.ValidationError("test_cases", "must not be negative")
	}
	if item.TestCasesPassed > item.TotalTestCases {
		return repository.Result{}, appErr.ValidationError("test_cases_passed", "exceeds total_test_cases")
	}
	if item.Runtime != nil && *item.Runtime < 0 {
		return repository.Result{}, appErr.ValidationError("runtime", "must not be negative")
	}
	if item.Memory != nil && *item.Memory < 0 {
		return repository.Result{}, appErr.ValidationError("memory", "must not be negative")
	}
	result := repository.Result{
		Status:          grading.StatusFor(item.TestCasesPassed, item.TotalTestCases),
		TestCasesPassed: item.TestCasesPassed,
		TotalTestCases:  item.TotalTestCases,
		Memory:          item.Memory,
	}
	if item.Runtime != nil {
		runtime := grading.RoundRuntime(*item.Runtime)
		result.Runtime = &runtime
	}
	return result, nil
}
