package service

import (
	"context"
	"encoding/json"
	"time"

	"codegrader/internal/common/mq"
	"codegrader/internal/submit/repository"
	"codegrader/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	eventSourceFinalize = "finalize"
	eventSourceBatch    = "batch"
)

// GradedEvent is published once a submission reaches a terminal status.
type GradedEvent struct {
	SubmissionID    string   `json:"submission_id"`
	UserID          string   `json:"user_id"`
	ProblemID       string   `json:"problem_id"`
	Language        string   `json:"language"`
	Status          string   `json:"status"`
	TestCasesPassed int      `json:"test_cases_passed"`
	TotalTestCases  int      `json:"total_test_cases"`
	Runtime         *float64 `json:"runtime,omitempty"`
	Memory          *int64   `json:"memory,omitempty"`
	Origin          string   `json:"origin"`
	GradedAt        int64    `json:"graded_at"`
}

func (s *SubmitService) publishGraded(ctx context.Context, submission *repository.Submission, origin string) {
	if s.producer == nil || s.eventsTopic == "" || submission == nil {
		return
	}
	body, err := json.Marshal(GradedEvent{
		SubmissionID:    submission.ID,
		UserID:          submission.UserID,
		ProblemID:       submission.ProblemID,
		Language:        submission.Language,
		Status:          submission.Status,
		TestCasesPassed: submission.TestCasesPassed,
		TotalTestCases:  submission.TotalTestCases,
		Runtime:         submission.Runtime,
		Memory:          submission.Memory,
		Origin:          origin,
		GradedAt:        time.Now().Unix(),
	})
	if err != nil {
		logger.Warn(ctx, "encode graded event failed", zap.Error(err))
		return
	}
	msg := mq.NewMessage(submission.ID, body)
	msg.SetHeader("event", "submission.graded")

	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.producer.Publish(ctxMQ.ctx, s.eventsTopic, msg); err != nil {
		logger.Warn(ctx, "publish graded event failed",
			zap.String("submission_id", submission.ID),
			zap.Error(err),
		)
	}
}
