package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
)

// UnreadService 未读数统计与角标推送
type UnreadService interface {
	CountUnread(ctx context.Context, convID, userID uint64) (int64, error)
	GlobalUnread(ctx context.Context, userID uint64) (*dto.GlobalUnreadDTO, error)
	PushUnread(ctx context.Context, convID uint64, userIDs []uint64)
}

type unreadServiceImpl struct {
	convRepo    repository.ConversationRepo
	messageRepo repository.MessageRepo
	router      ws.Router
	// 单实例 Hub 可以直接判断在线；Redis 中继下其他实例的连接不可见
	localOnly bool
}

func NewUnreadService(convRepo repository.ConversationRepo, messageRepo repository.MessageRepo, router ws.Router) UnreadService {
	_, localOnly := router.(*ws.Hub)
	return &unreadServiceImpl{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		router:      router,
		localOnly:   localOnly,
	}
}

// CountUnread 他人在水位之后发送且未删除的消息数
func (s *unreadServiceImpl) CountUnread(ctx context.Context, convID, userID uint64) (int64, error) {
	p, err := s.convRepo.GetParticipant(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotMember
		}
		return 0, err
	}
	return s.messageRepo.CountUnread(ctx, convID, userID, p.LastReadAt)
}

func (s *unreadServiceImpl) GlobalUnread(ctx context.Context, userID uint64) (*dto.GlobalUnreadDTO, error) {
	list, err := s.convRepo.GetUserConversationList(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := &dto.GlobalUnreadDTO{Conversations: make(map[uint64]int64, len(list))}
	for _, m := range list {
		res.Conversations[m.ConversationID] = m.UnreadCount
		res.Total += m.UnreadCount
	}
	return res, nil
}

// PushUnread 重新计算并推送角标，失败只记录
func (s *unreadServiceImpl) PushUnread(ctx context.Context, convID uint64, userIDs []uint64) {
	for _, uid := range userIDs {
		if s.localOnly && !s.router.Online(uid) {
			continue
		}
		global, err := s.GlobalUnread(ctx, uid)
		if err != nil {
			log.ErrorContext(ctx, "计算未读数失败", "user_id", uid, "conversation_id", convID, "err", err)
			continue
		}
		s.router.RouteToUser(uid, ws.NewEvent(consts.EventUnreadUpdate, convID, &dto.UnreadUpdateDTO{
			ConversationID: convID,
			Count:          global.Conversations[convID],
			Total:          global.Total,
		}))
	}
}

type unreadTask struct {
	convID  uint64
	userIDs []uint64
}

// unreadDispatcher 在后台重算角标，发送与删除不等待逐人统计
// 同一会话的任务固定落在同一个 worker 上，保持推送顺序
type unreadDispatcher struct {
	unread   UnreadService
	timeout  time.Duration
	queues   []chan *unreadTask
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newUnreadDispatcher(unread UnreadService, timeout time.Duration, queueSize, workerCount int) *unreadDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	perWorker := queueSize / workerCount
	if perWorker < 1 {
		perWorker = 1
	}
	d := &unreadDispatcher{
		unread:   unread,
		timeout:  timeout,
		queues:   make([]chan *unreadTask, workerCount),
		stopChan: make(chan struct{}),
	}
	d.wg.Add(workerCount)
	for i := range d.queues {
		d.queues[i] = make(chan *unreadTask, perWorker)
		go d.worker(d.queues[i])
	}
	return d
}

// submit 队列满时丢弃，角标在下一次变化或客户端拉取时修正
func (d *unreadDispatcher) submit(convID uint64, userIDs []uint64) {
	if len(userIDs) == 0 {
		return
	}
	select {
	case d.queues[convID%uint64(len(d.queues))] <- &unreadTask{convID: convID, userIDs: userIDs}:
	default:
		log.Warn("未读推送队列已满，丢弃本次推送", "conversation_id", convID, "users", len(userIDs))
	}
}

func (d *unreadDispatcher) worker(queue chan *unreadTask) {
	defer d.wg.Done()
	for {
		select {
		case task := <-queue:
			d.run(task)
		case <-d.stopChan:
			for {
				select {
				case task := <-queue:
					d.run(task)
				default:
					return
				}
			}
		}
	}
}

func (d *unreadDispatcher) run(task *unreadTask) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.unread.PushUnread(ctx, task.convID, task.userIDs)
}

// close 处理完已排队的任务后返回，可重复调用
func (d *unreadDispatcher) close() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	d.wg.Wait()
}
