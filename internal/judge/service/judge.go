package service

import (
	"context"
	"time"

	"codegrader/internal/judge/model"
)

// JudgeAPI is the remote execution service.
type JudgeAPI interface {
	Submit(ctx context.Context, req model.JobRequest) (string, error)
	Get(ctx context.Context, token string) (model.JudgeResult, error)
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
