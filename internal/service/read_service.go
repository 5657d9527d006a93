package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"gorm.io/gorm"
)

const hookTimeout = 3 * time.Second

// ReadHook 水位推进后的回调，例如同步站内信的已读状态
type ReadHook interface {
	OnConversationRead(ctx context.Context, userID, convID uint64) error
}

// ReadService 已读水位维护
type ReadService interface {
	MarkRead(ctx context.Context, convID, userID uint64, upToMessageID *uint64) (*dto.MarkReadResp, error)
}

type readServiceImpl struct {
	conversations ConversationService
	messageRepo   repository.MessageRepo
	readRepo      repository.ReadStateRepo
	unread        UnreadService
	router        ws.Router
	hooks         []ReadHook
}

func NewReadService(
	conversations ConversationService,
	messageRepo repository.MessageRepo,
	readRepo repository.ReadStateRepo,
	unread UnreadService,
	router ws.Router,
	hooks ...ReadHook,
) ReadService {
	return &readServiceImpl{
		conversations: conversations,
		messageRepo:   messageRepo,
		readRepo:      readRepo,
		unread:        unread,
		router:        router,
		hooks:         hooks,
	}
}

// MarkRead 把水位推进到 upToMessageID，未指定或不属于该会话时推进到最新一条
// 返回推进后的水位与本次新计入已读的消息数
func (s *readServiceImpl) MarkRead(ctx context.Context, convID, userID uint64, upToMessageID *uint64) (*dto.MarkReadResp, error) {
	if convID == 0 || userID == 0 {
		return nil, ErrParamInvalid
	}
	if _, err := s.conversations.EnsureParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}

	readUpTo, ok, err := s.resolveReadUpTo(ctx, convID, upToMessageID)
	if err != nil {
		return nil, err
	}

	var (
		readAt   time.Time
		newly    int
		advanced bool
	)
	err = s.readRepo.WithTx(ctx, func(tx repository.ReadStateTx) error {
		p, err := tx.LockParticipant(convID, userID)
		if err != nil {
			return err
		}
		prev := p.LastReadAt.UTC()
		readAt = prev
		// 空会话，或目标不晚于当前水位
		if !ok || !readUpTo.After(prev) {
			return nil
		}

		candidates, err := tx.FindCandidates(convID, userID, prev, readUpTo)
		if err != nil {
			return err
		}
		receipted, err := tx.FindReceipted(userID, candidates)
		if err != nil {
			return err
		}
		done := make(map[uint64]struct{}, len(receipted))
		for _, id := range receipted {
			done[id] = struct{}{}
		}
		receipts := make([]*model.ReadReceipt, 0, len(candidates))
		for _, id := range candidates {
			if _, ok := done[id]; ok {
				continue
			}
			receipts = append(receipts, &model.ReadReceipt{
				MessageID:      id,
				UserID:         userID,
				ConversationID: convID,
			})
		}

		inserted, err := tx.InsertReceipts(receipts)
		if err != nil {
			return err
		}
		newly = int(inserted)
		if len(receipts) > 0 && inserted == 0 {
			// 批量去重插入报告 0 行时按候选集计数，宁可多计不可漏计
			log.WarnContext(ctx, "回执插入未生效，按候选数计入", "conversation_id", convID, "user_id", userID, "candidates", len(candidates))
			newly = len(candidates)
		}

		advanced, err = tx.AdvanceWatermark(convID, userID, readUpTo)
		if err != nil {
			return err
		}
		if advanced {
			readAt = readUpTo
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	if advanced {
		s.afterRead(context.WithoutCancel(ctx), convID, userID, readAt)
	}
	return &dto.MarkReadResp{ReadAt: readAt, NewlyReadCount: newly}, nil
}

// resolveReadUpTo 第二个返回值为 false 表示会话还没有消息
func (s *readServiceImpl) resolveReadUpTo(ctx context.Context, convID uint64, upToMessageID *uint64) (time.Time, bool, error) {
	if upToMessageID != nil && *upToMessageID != 0 {
		msg, err := s.messageRepo.GetMessage(ctx, *upToMessageID)
		if err == nil && msg.ConversationID == convID {
			return msg.CreatedAt.UTC(), true, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, err
		}
	}

	// 取最新消息时间而非当前时间，避免漏掉与本次调用并发写入的消息
	latest, err := s.messageRepo.GetLatestMessage(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return latest.CreatedAt.UTC(), true, nil
}

func (s *readServiceImpl) afterRead(ctx context.Context, convID, userID uint64, readAt time.Time) {
	ids, err := s.conversations.ParticipantIDs(ctx, convID)
	if err != nil {
		log.ErrorContext(ctx, "获取会话成员失败", "conversation_id", convID, "err", err)
	} else {
		s.router.Fanout(convID, ws.NewEvent(consts.EventMessageRead, convID, &dto.ReadReceiptDTO{
			ConversationID: convID,
			UserID:         userID,
			ReadAt:         readAt,
		}), ids, 0)
	}
	s.unread.PushUnread(ctx, convID, []uint64{userID})

	if len(s.hooks) == 0 {
		return
	}
	go func() {
		hctx, cancel := context.WithTimeout(ctx, hookTimeout)
		defer cancel()
		for _, h := range s.hooks {
			if err := h.OnConversationRead(hctx, userID, convID); err != nil {
				log.WarnContext(hctx, "已读回调失败", "conversation_id", convID, "user_id", userID, "err", err)
			}
		}
	}()
}
