package model

import "time"

// Message 消息明细，软删除
type Message struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"index:idx_conv_created,priority:1;not null" json:"conversationId"`
	AuthorID       uint64     `gorm:"index;not null" json:"authorId"`
	Text           string     `gorm:"type:text;not null" json:"text"`
	ReplyToID      *uint64    `gorm:"index" json:"replyToId"`
	CreatedAt      time.Time  `gorm:"index:idx_conv_created,priority:2;precision:6" json:"createdAt"`
	Deleted        bool       `gorm:"not null;default:false" json:"deleted"`
	DeletedAt      *time.Time `gorm:"precision:6" json:"deletedAt"`
	DeletedBy      uint64     `gorm:"not null;default:0" json:"deletedBy"`
}

func (Message) TableName() string { return "messages" }
