package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"codegrader/internal/judge/model"
	appErr "codegrader/pkg/errors"
)

// Fetcher reads job results from the judge. Results are returned as the
// judge reports them; nothing is cached or retried here.
type Fetcher struct {
	judge   JudgeAPI
	timeout time.Duration
}

func NewFetcher(judge JudgeAPI, timeout time.Duration) (*Fetcher, error) {
	if judge == nil {
		return nil, errors.New("judge client is required")
	}
	if timeout <= 0 {
		timeout = defaultJudgeTimeout
	}
	return &Fetcher{judge: judge, timeout: timeout}, nil
}

// FetchResult performs one judge lookup for token.
func (f *Fetcher) FetchResult(ctx context.Context, token string) (model.JudgeResult, error) {
	if strings.TrimSpace(token) == "" {
		return model.JudgeResult{}, appErr.ValidationError("token", "required")
	}
	ctxJudge := withTimeout(ctx, f.timeout)
	defer ctxJudge.cancel()
	return f.judge.Get(ctxJudge.ctx, token)
}

// FetchResults looks tokens up one after another, in order, and stops at the
// first failure. Duplicate tokens are fetched again.
func (f *Fetcher) FetchResults(ctx context.Context, tokens []string) ([]model.JudgeResult, error) {
	if len(tokens) == 0 {
		return nil, appErr.ValidationError("tokens", "required")
	}
	results := make([]model.JudgeResult, 0, len(tokens))
	for _, token := range tokens {
		result, err := f.FetchResult(ctx, token)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
