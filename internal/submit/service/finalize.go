package service

import (
	"context"
	"strings"

	"codegrader/internal/judge/model"
	"codegrader/internal/submit/grading"
	"codegrader/internal/submit/repository"
	appErr "codegrader/pkg/errors"
	"codegrader/pkg/utils/logger"

	"go.uber.org/zap"
)

// FinalizeInput carries judge results collected by the caller.
type FinalizeInput struct {
	UserID          string
	SubmissionID    string
	Results         []model.JudgeResult
	ExpectedOutputs []string
}

// FinalizeOutput is the updated submission plus the per-case breakdown.
type FinalizeOutput struct {
	Submission *repository.Submission `json:"submission"`
	Outcome    grading.Outcome        `json:"outcome"`
}

// FinalizeWithResults evaluates results against expected outputs and records the outcome.
func (s *SubmitService) FinalizeWithResults(ctx context.Context, input FinalizeInput) (FinalizeOutput, error) {
	if len(input.Results) != len(input.ExpectedOutputs) {
		return FinalizeOutput{}, appErr.ValidationError("expected_outputs", "length must match results")
	}
	outcome := s.evaluator.Evaluate(input.Results, input.ExpectedOutputs)
	submission, err := s.Finalize(ctx, input.UserID, input.SubmissionID, outcome)
	if err != nil {
		return FinalizeOutput{}, err
	}
	return FinalizeOutput{Submission: submission, Outcome: outcome}, nil
}

// Finalize writes outcome onto the caller's submission. Calling it again
// simply overwrites the previous result.
func (s *SubmitService) Finalize(ctx context.Context, userID, submissionID string, outcome grading.Outcome) (*repository.Submission, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErr.UnauthorizedError("missing user identity")
	}
	submission, err := s.Get(ctx, userID, submissionID)
	if err != nil {
		return nil, err
	}

	runtime := outcome.TotalRuntime
	memory := outcome.AvgMemory
	result := repository.Result{
		Status:          grading.StatusFor(outcome.TestCasesPassed, outcome.TotalTestCases),
		TestCasesPassed: outcome.TestCasesPassed,
		TotalTestCases:  outcome.TotalTestCases,
		Runtime:         &runtime,
		Memory:          &memory,
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissions.UpdateResult(ctxDB.ctx, nil, submission.ID, result); err != nil {
		return nil, appErr.Wrapf(err, appErr.SubmissionUpdateFailed, "finalize submission failed")
	}

	updated := *submission
	updated.Status = result.Status
	updated.TestCasesPassed = result.TestCasesPassed
	updated.TotalTestCases = result.TotalTestCases
	updated.Runtime = result.Runtime
	updated.Memory = result.Memory

	logger.Info(ctx, "submission finalized",
		zap.String("submission_id", updated.ID),
		zap.String("status", updated.Status),
		zap.Int("passed", updated.TestCasesPassed),
		zap.Int("total", updated.TotalTestCases),
	)
	s.publishGraded(ctx, &updated, eventSourceFinalize)
	return &updated, nil
}

// RefreshOutput reports whether every judge job of a submission has finished.
type RefreshOutput struct {
	Submission *repository.Submission `json:"submission"`
	Done       bool                   `json:"done"`
	Pending    int                    `json:"pending"`
	Outcome    *grading.Outcome       `json:"outcome,omitempty"`
}

// Refresh polls the judge for a pending submission using its stored tokens
// and finalizes it once all jobs are finished. Expected outputs must have
// been supplied at submit time.
func (s *SubmitService) Refresh(ctx context.Context, userID, submissionID string) (RefreshOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return RefreshOutput{}, appErr.UnauthorizedError("missing user identity")
	}
	submission, err := s.Get(ctx, userID, submissionID)
	if err != nil {
		return RefreshOutput{}, err
	}
	if submission.Status != grading.StatusPending {
		return RefreshOutput{Submission: submission, Done: true}, nil
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	stored, err := s.tokens.ListBySubmission(ctxDB.ctx, nil, submission.ID)
	ctxDB.cancel()
	if err != nil {
		return RefreshOutput{}, appErr.Wrapf(err, appErr.DatabaseError, "load submission tokens failed")
	}
	if len(stored) == 0 {
		return RefreshOutput{}, appErr.ValidationError("submission_id", "no judge tokens recorded")
	}

	tokens := make([]string, 0, len(stored))
	expected := make([]string, 0, len(stored))
	for _, t := range stored {
		if t.ExpectedOutput == nil {
			return RefreshOutput{}, appErr.ValidationError("expected_outputs", "not recorded at submit time")
		}
		tokens = append(tokens, t.Token)
		expected = append(expected, *t.ExpectedOutput)
	}

	results, err := s.fetcher.FetchResults(ctx, tokens)
	if err != nil {
		return RefreshOutput{}, err
	}
	pending := 0
	for _, r := range results {
		if !r.Finished() {
			pending++
		}
	}
	if pending > 0 {
		return RefreshOutput{Submission: submission, Pending: pending}, nil
	}

	outcome := s.evaluator.Evaluate(results, expected)
	// Cases the judge rejected at dispatch have no token and count as failed.
	if submission.TotalTestCases > outcome.TotalTestCases {
		outcome.TotalTestCases = submission.TotalTestCases
		outcome.Status = grading.StatusFor(outcome.TestCasesPassed, outcome.TotalTestCases)
	}
	updated, err := s.Finalize(ctx, userID, submission.ID, outcome)
	if err != nil {
		return RefreshOutput{}, err
	}
	return RefreshOutput{Submission: updated, Done: true, Outcome: &outcome}, nil
}
