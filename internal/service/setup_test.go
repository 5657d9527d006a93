package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/database"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/repository"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := database.NewGormConfig()
	cfg.PrepareStmt = false
	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接独立，只保留一个
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyTask
	err   error
	done  chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 64)}
}

func (r *recordingNotifier) OnMessageSent(_ context.Context, msg *dto.MessageDTO, recipientIDs []uint64) error {
	r.mu.Lock()
	r.calls = append(r.calls, notifyTask{msg: msg, recipientIDs: recipientIDs})
	err := r.err
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
	return err
}

func (r *recordingNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("通知未在超时内触发")
	}
}

type fixture struct {
	db            *gorm.DB
	hub           *ws.Hub
	notifier      *recordingNotifier
	rolesRepo     repository.UserRolesRepo
	communityRepo repository.CommunityRepo
	userRepo      repository.UserRepo
	conversations ConversationService
	messages      MessageService
	reads         ReadService
	unread        UnreadService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	hub := ws.NewHub()

	convRepo := repository.NewConversationRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	readRepo := repository.NewReadStateRepo(db)
	rolesRepo := repository.NewUserRolesRepo(db)
	communityRepo := repository.NewCommunityRepo(db)
	userRepo := repository.NewUserRepo(db)

	authorizer := NewAuthorizer(convRepo, rolesRepo, communityRepo)
	conversations := NewConversationService(convRepo, authorizer, hub)
	unread := NewUnreadService(convRepo, messageRepo, hub)
	notifier := newRecordingNotifier()
	messages := NewMessageService(conversations, messageRepo, userRepo, authorizer, unread, hub, notifier, MessageOptions{
		MaxTextLength: 100,
		NotifyTimeout: time.Second,
	})
	t.Cleanup(messages.Close)
	reads := NewReadService(conversations, messageRepo, readRepo, unread, hub)

	return &fixture{
		db:            db,
		hub:           hub,
		notifier:      notifier,
		rolesRepo:     rolesRepo,
		communityRepo: communityRepo,
		userRepo:      userRepo,
		conversations: conversations,
		messages:      messages,
		reads:         reads,
		unread:        unread,
	}
}

func (f *fixture) connect(userID uint64) *ws.Client {
	c := ws.NewClient(userID, nil, 64)
	f.hub.Register(c)
	return c
}

func (f *fixture) send(t *testing.T, authorID uint64, req *dto.SendMessageReq) *dto.MessageDTO {
	t.Helper()
	msg, err := f.messages.Send(context.Background(), authorID, req)
	require.NoError(t, err)
	return msg
}

func (f *fixture) participant(t *testing.T, convID, userID uint64) *model.Participant {
	t.Helper()
	var p model.Participant
	require.NoError(t, f.db.Where("conversation_id = ? AND user_id = ?", convID, userID).First(&p).Error)
	return &p
}

type wireEvent struct {
	Type           string          `json:"type"`
	ConversationID uint64          `json:"conversation_id"`
	Data           json.RawMessage `json:"data"`
}

// events 取出连接队列中已有的事件
func events(c *ws.Client) []wireEvent {
	var out []wireEvent
	for {
		select {
		case data, ok := <-c.Send():
			if !ok {
				return out
			}
			var ev wireEvent
			if err := json.Unmarshal(data, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

// eventsUntil 持续收集事件，直到出现 n 个指定类型；角标推送在后台完成
func eventsUntil(t *testing.T, c *ws.Client, typ string, n int) []wireEvent {
	t.Helper()
	var out []wireEvent
	require.Eventually(t, func() bool {
		out = append(out, events(c)...)
		return len(ofType(out, typ)) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return out
}

func ofType(evs []wireEvent, typ string) []wireEvent {
	var out []wireEvent
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
