package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const InboxTypeMessage int8 = 1

// InboxModel 站内信收件箱，每个接收者一条
type InboxModel struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReceiverID     uint64             `bson:"receiver_id" json:"receiverId"`
	SenderID       uint64             `bson:"sender_id" json:"senderId"`
	Type           int8               `bson:"type" json:"type"`
	TargetID       uint64             `bson:"target_id" json:"targetId"` // 消息 ID
	ConversationID uint64             `bson:"conversation_id" json:"conversationId"`
	Content        string             `bson:"content" json:"content"` // 消息预览
	IsRead         bool               `bson:"is_read" json:"isRead"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}
