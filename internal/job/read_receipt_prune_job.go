package job

import (
	"Homestead/internal/pkg/logger"
	"Homestead/internal/repository"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const pruneTimeout = 5 * time.Minute

// ReadReceiptPruneJob 清理超过保留期的逐条已读回执
// 水位只前进，候选消息总在旧水位之后，早期回执不会再被查询
type ReadReceiptPruneJob struct {
	readRepo      repository.ReadStateRepo
	retentionDays int
	now           func() time.Time
}

func NewReadReceiptPruneJob(readRepo repository.ReadStateRepo, retentionDays int) *ReadReceiptPruneJob {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &ReadReceiptPruneJob{
		readRepo:      readRepo,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (s *ReadReceiptPruneJob) Run() {
	traceID := "job-receipt-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	before := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.readRepo.PruneReceipts(ctx, before)
	if err != nil {
		log.ErrorContext(ctx, "prune read receipts error", "before", before, "err", err)
		return
	}
	log.InfoContext(ctx, "prune read receipts success", "before", before, "deleted", n)
}
