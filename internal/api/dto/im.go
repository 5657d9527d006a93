package dto

import (
	"encoding/json"
	"time"
)

// SendMessageReq 发送消息请求体，三种会话定位方式必须且只能有一个
type SendMessageReq struct {
	ConversationID uint64  `json:"conversation_id" validate:"omitempty"`
	CounterpartyID uint64  `json:"counterparty_id" validate:"omitempty"`
	CommunityID    uint64  `json:"community_id" validate:"omitempty"`
	Text           string  `json:"text" validate:"required"`
	ReplyToID      *uint64 `json:"reply_to_id,omitempty" validate:"omitempty,gt=0"`
}

// AuthorDTO 作者摘要
type AuthorDTO struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ReplyPreviewDTO 被回复消息的裁剪预览
type ReplyPreviewDTO struct {
	ID       uint64 `json:"id"`
	AuthorID uint64 `json:"author_id"`
	Text     string `json:"text"`
	Deleted  bool   `json:"deleted"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             uint64           `json:"id"`
	ConversationID uint64           `json:"conversation_id"`
	AuthorID       uint64           `json:"author_id"`
	Text           string           `json:"text"`
	ReplyToID      *uint64          `json:"reply_to_id,omitempty"`
	Deleted        bool             `json:"deleted"`
	CreatedAt      time.Time        `json:"created_at"`
	Author         *AuthorDTO       `json:"author,omitempty"`
	ReplyTo        *ReplyPreviewDTO `json:"reply_to,omitempty"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	Kind           int8      `json:"kind"` // 1-单聊, 2-群聊
	CanonicalKey   string    `json:"canonical_key"`
	PeerID         uint64    `json:"peer_id,omitempty"`      // 对方用户 ID (单聊有效)
	CommunityID    uint64    `json:"community_id,omitempty"` // 所属社区 (群聊有效)
	IsActive       bool      `json:"is_active"`
	LastMessageAt  time.Time `json:"last_message_at"`
	LastReadAt     time.Time `json:"last_read_at"`
	UnreadCount    int64     `json:"unread_count"`
}

// MarkReadReq 标记已读请求
type MarkReadReq struct {
	ConversationID uint64  `json:"conversation_id" validate:"required"`
	UpToMessageID  *uint64 `json:"up_to_message_id,omitempty" validate:"omitempty,gt=0"`
}

// MarkReadResp 标记已读结果
type MarkReadResp struct {
	ReadAt         time.Time `json:"read_at"`
	NewlyReadCount int       `json:"newly_read_count"`
}

// ReadReceiptDTO 已读回执推送
type ReadReceiptDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	UserID         uint64    `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

// UnreadUpdateDTO 角标更新推送
type UnreadUpdateDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	Count          int64  `json:"count"`
	Total          int64  `json:"total"`
}

// GlobalUnreadDTO 全局未读
type GlobalUnreadDTO struct {
	Conversations map[uint64]int64 `json:"conversations"`
	Total         int64            `json:"total"`
}

// MessageDeletedDTO 消息删除推送
type MessageDeletedDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	MessageID      uint64 `json:"message_id"`
	DeletedBy      uint64 `json:"deleted_by"`
}

// ConversationStateDTO 群聊启用/禁用/删除推送
type ConversationStateDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	IsActive       bool   `json:"is_active"`
	Deleted        bool   `json:"deleted"`
}

// DirectConversationReq 单聊获取或创建
type DirectConversationReq struct {
	CounterpartyID uint64 `json:"counterparty_id" binding:"required"`
}

// ConversationStatusReq 群聊状态切换
type ConversationStatusReq struct {
	Active *bool `json:"active" binding:"required"`
}

// HistoryQuery 历史消息分页
type HistoryQuery struct {
	ConversationID uint64 `form:"conversation_id" binding:"required"`
	Page           int    `form:"page"`
	Limit          int    `form:"limit"`
}

// SearchQuery 消息搜索
type SearchQuery struct {
	Query          string `form:"query" binding:"required"`
	ConversationID uint64 `form:"conversation_id"`
	Page           int    `form:"page"`
	Limit          int    `form:"limit"`
}

// WsFrame 长连接上行帧
type WsFrame struct {
	Type string          `json:"type" validate:"required,oneof=join send markRead"`
	Data json.RawMessage `json:"data"`
}

// WsJoinReq join 帧数据
type WsJoinReq struct {
	ConversationID uint64 `json:"conversation_id" validate:"required"`
}

// InboxQuery 站内信分页
type InboxQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}
