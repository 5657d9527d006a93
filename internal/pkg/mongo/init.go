package mongo

import (
	"Homestead/internal/api/config"
	"Homestead/internal/pkg/logger"
	"context"
	"fmt"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const inboxCollection = "sys_box"

// InitMongo 建立连接并返回 Database 引用，同时初始化收件箱索引
func InitMongo(cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetMonitor(logger.NewMongoMonitor()),
	)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	if err = ensureInboxIndexes(ctx, db.Collection(inboxCollection)); err != nil {
		return nil, fmt.Errorf("create inbox indexes: %w", err)
	}

	log.Info("MongoDB initialized successfully", "db", cfg.Database)
	return db, nil
}

// ensureInboxIndexes 列表按接收者倒序翻页；会话已读时按接收者+会话批量更新
func ensureInboxIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_receiver_created"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "conversation_id", Value: 1}, {Key: "is_read", Value: 1}},
			Options: options.Index().SetName("idx_receiver_conversation_read"),
		},
	})
	return err
}
