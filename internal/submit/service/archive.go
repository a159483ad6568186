package service

import (
	"bytes"
	"context"
	"fmt"

	"codegrader/pkg/utils/logger"

	"go.uber.org/zap"
)

const sourceContentType = "application/zstd"

// archiveSource stores the merged program zstd-compressed. Failures are
// logged only; the submission row is already the record of truth.
func (s *SubmitService) archiveSource(ctx context.Context, submissionID, source string) {
	if s.storage == nil || s.encoder == nil {
		return
	}
	payload := s.encoder.EncodeAll([]byte(source), nil)
	key := s.sourceKey(submissionID)

	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	err := s.storage.PutObject(ctxStorage.ctx, s.sourceBucket, key, bytes.NewReader(payload), int64(len(payload)), sourceContentType)
	if err != nil {
		logger.Warn(ctx, "archive source failed",
			zap.String("submission_id", submissionID),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *SubmitService) sourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.code.zst", s.sourceKeyPrefix, submissionID)
}
