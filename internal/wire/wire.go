package wire

import (
	"Homestead/internal/api"
	"Homestead/internal/api/config"
	"Homestead/internal/api/handler"
	"Homestead/internal/job"
	"Homestead/internal/pkg/cron"
	"Homestead/internal/pkg/kafka"
	"Homestead/internal/pkg/mongo"
	"Homestead/internal/pkg/redis"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/repository"
	"Homestead/internal/service"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const presenceRedis = "redis"

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router   *gin.Engine
	DB       *gorm.DB
	Hub      *ws.Hub
	Relay    *ws.RedisRelay // 单进程模式下为 nil
	Messages service.MessageService
	Producer *kafka.MessageProducer // 未启用 Kafka 时为 nil
	CronMgr  *cron.Manager
}

// BuildApplication 组装依赖，mongoDB 为 nil 时不挂载站内收件箱
func BuildApplication(db *gorm.DB, mongoDB *mongodrv.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	readRepo := repository.NewReadStateRepo(db)
	userRepo := repository.NewUserRepo(db)
	userRolesRepo := repository.NewUserRolesRepo(db)
	communityRepo := repository.NewCommunityRepo(db)

	// 在线路由
	hub := ws.NewHub()
	var router ws.Router = hub
	var relay *ws.RedisRelay
	if cfg.IM.PresenceBackend == presenceRedis {
		relay = ws.NewRedisRelay(hub, redis.GetRdbClient())
		router = relay
	}

	// 离线通知
	var chain service.NotifierChain
	var hooks []service.ReadHook
	var producer *kafka.MessageProducer
	var inboxHandler *handler.InboxHandler
	if cfg.Kafka.Enable {
		p, err := kafka.NewMessageProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		producer = p
		chain = append(chain, p)
	}
	if mongoDB != nil {
		inboxRepo := mongo.NewInboxRepo(mongoDB)
		inbox := mongo.NewInboxNotifier(inboxRepo)
		inboxHandler = handler.NewInboxHandler(inboxRepo)
		chain = append(chain, inbox)
		hooks = append(hooks, inbox)
	}
	log.Info("notification bridge assembled", "adapters", len(chain), "presence", cfg.IM.PresenceBackend)

	authorizer := service.NewAuthorizer(convRepo, userRolesRepo, communityRepo)
	conversationService := service.NewConversationService(convRepo, authorizer, router)
	unreadService := service.NewUnreadService(convRepo, messageRepo, router)
	messageService := service.NewMessageService(
		conversationService, messageRepo, userRepo, authorizer, unreadService, router, chain,
		service.MessageOptions{
			MaxTextLength: cfg.IM.MaxTextLength,
			NotifyTimeout: time.Duration(cfg.IM.NotifyTimeoutMs) * time.Millisecond,
		},
	)
	readService := service.NewReadService(conversationService, messageRepo, readRepo, unreadService, router, hooks...)

	handlers := &api.HandlersGroup{
		IMHandler:    handler.NewIMHandler(conversationService, messageService, readService, unreadService),
		WSHandler:    handler.NewWsHandler(hub, conversationService, messageService, readService, cfg.IM.SendQueueSize),
		InboxHandler: inboxHandler,
	}
	engine := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(
		job.NewReadReceiptPruneJob(readRepo, cfg.IM.ReceiptRetentionDays),
		cfg.IM.ReceiptPruneSpec,
	)

	return &ApplicationContainer{
		Router:   engine,
		DB:       db,
		Hub:      hub,
		Relay:    relay,
		Messages: messageService,
		Producer: producer,
		CronMgr:  cronMgr,
	}, nil
}
