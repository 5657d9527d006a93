package repository

import (
	"Homestead/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadStateRepo 已读水位与回执去重
type ReadStateRepo interface {
	// WithTx 在同一事务内执行一次完整的已读标记
	WithTx(ctx context.Context, fn func(tx ReadStateTx) error) error
	PruneReceipts(ctx context.Context, before time.Time) (int64, error)
}

// ReadStateTx 事务内可用的操作
type ReadStateTx interface {
	LockParticipant(convID, userID uint64) (*model.Participant, error)
	FindCandidates(convID, userID uint64, after, upTo time.Time) ([]uint64, error)
	FindReceipted(userID uint64, msgIDs []uint64) ([]uint64, error)
	InsertReceipts(receipts []*model.ReadReceipt) (int64, error)
	AdvanceWatermark(convID, userID uint64, readUpTo time.Time) (bool, error)
}

type readStateRepoImpl struct {
	db *gorm.DB
}

func NewReadStateRepo(db *gorm.DB) ReadStateRepo {
	return &readStateRepoImpl{db: db}
}

func (s *readStateRepoImpl) WithTx(ctx context.Context, fn func(tx ReadStateTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&readStateTxImpl{tx: tx})
	})
}

// PruneReceipts 清理过期回执
func (s *readStateRepoImpl) PruneReceipts(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.ReadReceipt{})
	return res.RowsAffected, res.Error
}

type readStateTxImpl struct {
	tx *gorm.DB
}

// LockParticipant 行锁住成员记录，同一用户同一会话的已读标记在此串行化
func (s *readStateTxImpl) LockParticipant(convID, userID uint64) (*model.Participant, error) {
	var p model.Participant
	err := s.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindCandidates 他人发送、落在 (after, upTo] 区间内且未删除的消息
func (s *readStateTxImpl) FindCandidates(convID, userID uint64, after, upTo time.Time) ([]uint64, error) {
	var ids []uint64
	err := s.tx.Model(&model.Message{}).
		Where("conversation_id = ? AND author_id <> ? AND deleted = ?", convID, userID, false).
		Where("created_at > ? AND created_at <= ?", after, upTo).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// FindReceipted 已经记过回执的消息 ID
func (s *readStateTxImpl) FindReceipted(userID uint64, msgIDs []uint64) ([]uint64, error) {
	var ids []uint64
	if len(msgIDs) == 0 {
		return ids, nil
	}
	err := s.tx.Model(&model.ReadReceipt{}).
		Where("user_id = ? AND message_id IN ?", userID, msgIDs).
		Pluck("message_id", &ids).Error
	return ids, err
}

// InsertReceipts 批量插入，已存在的跳过，返回实际插入行数
func (s *readStateTxImpl) InsertReceipts(receipts []*model.ReadReceipt) (int64, error) {
	if len(receipts) == 0 {
		return 0, nil
	}
	res := s.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts)
	return res.RowsAffected, res.Error
}

// AdvanceWatermark 水位只前进不后退
func (s *readStateTxImpl) AdvanceWatermark(convID, userID uint64, readUpTo time.Time) (bool, error) {
	res := s.tx.Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND last_read_at < ?", convID, userID, readUpTo).
		Update("last_read_at", readUpTo)
	return res.RowsAffected > 0, res.Error
}
