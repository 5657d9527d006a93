package model

import "time"

const (
	ConversationKindDirect int8 = 1
	ConversationKindGroup  int8 = 2
)

// EpochZero 从未读过时的水位
var EpochZero = time.Unix(0, 0).UTC()

// Conversation 会话主表，单聊与社区群聊共用
type Conversation struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind          int8      `gorm:"not null;default:1" json:"kind"`                            // 1-单聊, 2-群聊
	CanonicalKey  string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"canonicalKey"` // 单聊 uid1_uid2, 群聊为社区 ID
	IsActive      bool      `gorm:"not null;default:true" json:"isActive"`                     // 群聊被管理员禁用时为 false
	LastMessageAt time.Time `gorm:"index;precision:6" json:"lastMessageAt"`
	CreatedAt     time.Time `gorm:"precision:6" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"precision:6" json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) IsGroup() bool { return c.Kind == ConversationKindGroup }

// Participant 会话参与者，首次交互时惰性创建
type Participant struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"uniqueIndex:idx_conv_user;not null" json:"conversationId"`
	UserID         uint64    `gorm:"uniqueIndex:idx_conv_user;index;not null" json:"userId"`
	LastReadAt     time.Time `gorm:"precision:6;not null" json:"lastReadAt"` // 已读水位，只增不减
	JoinedAt       time.Time `gorm:"precision:6" json:"joinedAt"`
}

func (Participant) TableName() string { return "conversation_participants" }
