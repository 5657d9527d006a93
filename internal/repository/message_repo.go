package repository

import (
	"Homestead/internal/model"
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type MessageRepo interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, msgID uint64) (*model.Message, error)
	GetMessagesByIDs(ctx context.Context, ids []uint64) ([]*model.Message, error)
	GetLatestMessage(ctx context.Context, convID uint64) (*model.Message, error)
	ListMessages(ctx context.Context, convID uint64, offset, limit int) ([]*model.Message, error)
	SearchMessages(ctx context.Context, userID uint64, keyword string, convID uint64, offset, limit int) ([]*model.Message, error)
	SoftDelete(ctx context.Context, msgID, operatorID uint64) error
	CountUnread(ctx context.Context, convID, userID uint64, since time.Time) (int64, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// CreateMessage 写入消息并刷新会话的最近消息时间，同一事务内完成
func (s *messageRepoImpl) CreateMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message_at": msg.CreatedAt,
				"updated_at":      msg.CreatedAt,
			}).Error
	})
}

func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID uint64) (*model.Message, error) {
	var msg model.Message
	if err := s.db.WithContext(ctx).First(&msg, msgID).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *messageRepoImpl) GetMessagesByIDs(ctx context.Context, ids []uint64) ([]*model.Message, error) {
	msgs := make([]*model.Message, 0, len(ids))
	if len(ids) == 0 {
		return msgs, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&msgs).Error
	return msgs, err
}

// GetLatestMessage 会话中最新一条消息，不存在时返回 gorm.ErrRecordNotFound
func (s *messageRepoImpl) GetLatestMessage(ctx context.Context, convID uint64) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages 按时间倒序分页
func (s *messageRepoImpl) ListMessages(ctx context.Context, convID uint64, offset, limit int) ([]*model.Message, error) {
	var msgs []*model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// SearchMessages 在用户参与的会话中做大小写不敏感的子串匹配
func (s *messageRepoImpl) SearchMessages(ctx context.Context, userID uint64, keyword string, convID uint64, offset, limit int) ([]*model.Message, error) {
	var msgs []*model.Message
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"

	q := s.db.WithContext(ctx).Table("messages m").
		Select("m.*").
		Joins("JOIN conversation_participants p ON p.conversation_id = m.conversation_id AND p.user_id = ?", userID).
		Where("m.deleted = ?", false).
		Where("LOWER(m.text) LIKE ? ESCAPE '!'", pattern)
	if convID > 0 {
		q = q.Where("m.conversation_id = ?", convID)
	}

	err := q.Order("m.created_at DESC, m.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// SoftDelete 软删除，已删除的消息保持原删除人
func (s *messageRepoImpl) SoftDelete(ctx context.Context, msgID, operatorID uint64) error {
	now := s.db.NowFunc()
	return s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND deleted = ?", msgID, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": now,
			"deleted_by": operatorID,
		}).Error
}

// CountUnread 统计他人在水位之后发送且未删除的消息数
func (s *messageRepoImpl) CountUnread(ctx context.Context, convID, userID uint64, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND author_id <> ? AND deleted = ? AND created_at > ?", convID, userID, false, since).
		Count(&count).Error
	return count, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
