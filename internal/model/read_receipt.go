package model

import "time"

// ReadReceipt 单条消息对某用户的已读计数去重记录
type ReadReceipt struct {
	MessageID      uint64    `gorm:"primaryKey;autoIncrement:false" json:"messageId"`
	UserID         uint64    `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	ConversationID uint64    `gorm:"index;not null" json:"conversationId"`
	CreatedAt      time.Time `gorm:"index;precision:6" json:"createdAt"`
}

func (ReadReceipt) TableName() string { return "read_receipts" }
