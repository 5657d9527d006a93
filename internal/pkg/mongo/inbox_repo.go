package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type InboxRepo interface {
	CreateNotifications(ctx context.Context, list []*InboxModel) error
	GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*InboxModel, error)
	MarkConversationRead(ctx context.Context, userID, convID uint64) error
}

type inboxRepoImpl struct {
	col *mongo.Collection
}

func NewInboxRepo(db *mongo.Database) InboxRepo {
	return &inboxRepoImpl{
		col: db.Collection(inboxCollection),
	}
}

// CreateNotifications 批量插入，无序写入，单条失败不影响其余
func (s *inboxRepoImpl) CreateNotifications(ctx context.Context, list []*InboxModel) error {
	if len(list) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(list))
	for _, m := range list {
		docs = append(docs, m)
	}
	_, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// GetNotificationList 分页获取用户的通知列表 (按时间倒序)
func (s *inboxRepoImpl) GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*InboxModel, error) {
	filter := bson.M{"receiver_id": userID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*InboxModel
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkConversationRead 会话已读后清掉对应的站内信
func (s *inboxRepoImpl) MarkConversationRead(ctx context.Context, userID, convID uint64) error {
	filter := bson.M{"receiver_id": userID, "conversation_id": convID, "is_read": false}
	update := bson.M{"$set": bson.M{"is_read": true}}
	_, err := s.col.UpdateMany(ctx, filter, update)
	return err
}
