package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"codegrader/internal/judge/model"
	appErr "codegrader/pkg/errors"
	"codegrader/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultMaxParallel   = 4
	defaultRatePerSecond = 10
	defaultBurst         = 5
	defaultJudgeTimeout  = 10 * time.Second
)

// DispatchConfig bounds how hard one request may hit the judge.
type DispatchConfig struct {
	MaxParallel   int           `yaml:"maxParallel"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DispatchedJob ties an accepted token to the index of the input it runs.
type DispatchedJob struct {
	Index int
	Token string
}

// DispatchResult lists accepted tokens in input order. DispatchedCount is the
// number of inputs attempted, which may exceed len(Tokens).
type DispatchResult struct {
	Tokens          []string
	DispatchedCount int
	Jobs            []DispatchedJob
	Language        model.Language
}

// Dispatcher fans one source program out to the judge, one job per input.
type Dispatcher struct {
	judge       JudgeAPI
	limiter     *rate.Limiter
	maxParallel int
	timeout     time.Duration
}

func NewDispatcher(judge JudgeAPI, cfg DispatchConfig) (*Dispatcher, error) {
	if judge == nil {
		return nil, errors.New("judge client is required")
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultJudgeTimeout
	}
	return &Dispatcher{
		judge:       judge,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxParallel: cfg.MaxParallel,
		timeout:     cfg.Timeout,
	}, nil
}

// Dispatch submits sourceCode once per test input. Empty inputs mean a single
// run with empty stdin. Rejected jobs are logged and dropped; if none are
// accepted the call fails with DispatchExhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, sourceCode, languageID string, testInputs []string) (DispatchResult, error) {
	if strings.TrimSpace(sourceCode) == "" {
		return DispatchResult{}, appErr.ValidationError("source_code", "required")
	}
	lang, err := model.ResolveLanguage(languageID)
	if err != nil {
		return DispatchResult{}, err
	}
	inputs := testInputs
	if len(inputs) == 0 {
		inputs = []string{""}
	}

	tokens := make([]string, len(inputs))
	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i, stdin := range inputs {
		i, stdin := i, stdin
		g.Go(func() error {
			token, err := d.submitOne(ctx, model.JobRequest{
				SourceCode: sourceCode,
				LanguageID: lang.JudgeID,
				Stdin:      stdin,
			})
			if err != nil {
				logger.Warn(ctx, "dispatch job rejected",
					zap.Int("index", i),
					zap.Int("language_id", lang.JudgeID),
					zap.Error(err),
				)
				return nil
			}
			tokens[i] = token
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return DispatchResult{}, contextError(err)
	}

	result := DispatchResult{DispatchedCount: len(inputs), Language: lang}
	for i, token := range tokens {
		if token == "" {
			continue
		}
		result.Tokens = append(result.Tokens, token)
		result.Jobs = append(result.Jobs, DispatchedJob{Index: i, Token: token})
	}
	if len(result.Tokens) == 0 {
		return DispatchResult{}, appErr.DispatchExhaustedError(len(inputs))
	}
	if len(result.Tokens) < len(inputs) {
		logger.Warn(ctx, "dispatch partially accepted",
			zap.Int("accepted", len(result.Tokens)),
			zap.Int("attempted", len(inputs)),
		)
	}
	return result, nil
}

func (d *Dispatcher) submitOne(ctx context.Context, req model.JobRequest) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	ctxJudge := withTimeout(ctx, d.timeout)
	defer ctxJudge.cancel()
	return d.judge.Submit(ctxJudge.ctx, req)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErr.Wrap(err, appErr.Timeout)
	}
	return appErr.Wrapf(err, appErr.ServiceUnavailable, "request canceled")
}
