package repository

import (
	"Homestead/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationByKey(ctx context.Context, canonicalKey string) (*model.Conversation, error)
	SetActive(ctx context.Context, convID uint64, active bool) error
	DeleteConversation(ctx context.Context, convID uint64) error

	AddParticipant(ctx context.Context, convID, userID uint64) error
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	GetParticipant(ctx context.Context, convID, userID uint64) (*model.Participant, error)
	GetParticipantIDs(ctx context.Context, convID uint64) ([]uint64, error)

	GetUserConversationList(ctx context.Context, userID uint64) ([]*ConversationSummary, error)
}

// ConversationSummary 会话列表查询结果
type ConversationSummary struct {
	ConversationID uint64
	Kind           int8
	CanonicalKey   string
	IsActive       bool
	LastMessageAt  time.Time
	LastReadAt     time.Time
	UnreadCount    int64
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 开启事务创建会话及初始成员
// canonical_key 唯一索引冲突时返回 gorm.ErrDuplicatedKey，由调用方回读胜出者
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if len(memberIDs) == 0 {
			return nil
		}
		members := make([]*model.Participant, 0, len(memberIDs))
		for _, uid := range memberIDs {
			members = append(members, &model.Participant{
				ConversationID: conv.ID,
				UserID:         uid,
				LastReadAt:     model.EpochZero,
				JoinedAt:       conv.CreatedAt,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, convID).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversationByKey 根据会话标识获取会话
func (s *conversationRepoImpl) GetConversationByKey(ctx context.Context, canonicalKey string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).Where("canonical_key = ?", canonicalKey).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// SetActive 群聊启用/禁用
func (s *conversationRepoImpl) SetActive(ctx context.Context, convID uint64, active bool) error {
	return s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", convID).
		Update("is_active", active).Error
}

// DeleteConversation 级联删除消息、回执、成员
func (s *conversationRepoImpl) DeleteConversation(ctx context.Context, convID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&model.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", convID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", convID).Delete(&model.Participant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Conversation{}, convID).Error
	})
}

// AddParticipant 不存在时插入成员
func (s *conversationRepoImpl) AddParticipant(ctx context.Context, convID, userID uint64) error {
	p := &model.Participant{
		ConversationID: convID,
		UserID:         userID,
		LastReadAt:     model.EpochZero,
		JoinedAt:       s.db.NowFunc(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *conversationRepoImpl) GetParticipant(ctx context.Context, convID, userID uint64) (*model.Participant, error) {
	var p model.Participant
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetParticipantIDs 会话全部成员 ID
func (s *conversationRepoImpl) GetParticipantIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.Participant{}).
		Where("conversation_id = ?", convID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// GetUserConversationList 按最近消息时间倒序列出用户会话，并带上未读数
func (s *conversationRepoImpl) GetUserConversationList(ctx context.Context, userID uint64) ([]*ConversationSummary, error) {
	var list []*ConversationSummary
	unread := s.db.Table("messages m").
		Select("COUNT(*)").
		Where("m.conversation_id = c.id AND m.author_id <> p.user_id AND m.deleted = ? AND m.created_at > p.last_read_at", false)

	err := s.db.WithContext(ctx).Table("conversation_participants p").
		Select("c.id AS conversation_id, c.kind, c.canonical_key, c.is_active, c.last_message_at, "+
			"p.last_read_at, (?) AS unread_count", unread).
		Joins("JOIN conversations c ON p.conversation_id = c.id").
		Where("p.user_id = ?", userID).
		Order("c.last_message_at DESC, c.id DESC").
		Scan(&list).Error
	return list, err
}
