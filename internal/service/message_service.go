package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/database"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

const (
	defaultMaxTextLength = 4000
	defaultPageSize      = 20
	maxPageSize          = 100
	sendLockStripes      = 64
)

// MessageService 消息的发送、拉取、搜索与删除
type MessageService interface {
	Send(ctx context.Context, authorID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	List(ctx context.Context, userID, convID uint64, page, limit int) ([]*dto.MessageDTO, error)
	Search(ctx context.Context, userID uint64, query string, convID uint64, page, limit int) ([]*dto.MessageDTO, error)
	Delete(ctx context.Context, messageID, requesterID uint64) error
	Close()
}

// MessageOptions 发送链路参数
type MessageOptions struct {
	MaxTextLength   int
	NotifyTimeout   time.Duration
	NotifyQueueSize int
	NotifyWorkers   int
	UnreadQueueSize int
	UnreadWorkers   int
}

type messageServiceImpl struct {
	conversations ConversationService
	messageRepo   repository.MessageRepo
	userRepo      repository.UserRepo
	authorizer    Authorizer
	router        ws.Router
	notifier      *notifyDispatcher
	unreadPush    *unreadDispatcher
	maxTextLength int

	// 按会话分段加锁，同一会话的写入与推送按创建顺序进行
	sendLocks [sendLockStripes]sync.Mutex
}

func NewMessageService(
	conversations ConversationService,
	messageRepo repository.MessageRepo,
	userRepo repository.UserRepo,
	authorizer Authorizer,
	unread UnreadService,
	router ws.Router,
	bridge NotificationBridge,
	opts MessageOptions,
) MessageService {
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = defaultMaxTextLength
	}
	return &messageServiceImpl{
		conversations: conversations,
		messageRepo:   messageRepo,
		userRepo:      userRepo,
		authorizer:    authorizer,
		router:        router,
		notifier:      newNotifyDispatcher(bridge, opts.NotifyTimeout, opts.NotifyQueueSize, opts.NotifyWorkers),
		unreadPush:    newUnreadDispatcher(unread, 0, opts.UnreadQueueSize, opts.UnreadWorkers),
		maxTextLength: opts.MaxTextLength,
	}
}

// Send 发送消息
func (s *messageServiceImpl) Send(ctx context.Context, authorID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if authorID == 0 || req == nil {
		return nil, ErrParamInvalid
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > s.maxTextLength {
		return nil, ErrTextTooLong
	}

	conv, err := s.resolveConversation(ctx, authorID, req)
	if err != nil {
		return nil, err
	}
	if conv.IsGroup() && !conv.IsActive {
		return nil, ErrChannelDisabled
	}

	var reply *model.Message
	if req.ReplyToID != nil {
		reply, err = s.messageRepo.GetMessage(ctx, *req.ReplyToID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		if reply.ConversationID != conv.ID {
			return nil, ErrCrossConversationReply
		}
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		AuthorID:       authorID,
		Text:           text,
		ReplyToID:      req.ReplyToID,
	}

	lock := &s.sendLocks[conv.ID%sendLockStripes]
	lock.Lock()
	res, participantIDs, err := s.persistAndFanout(ctx, msg, reply)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	recipients := make([]uint64, 0, len(participantIDs))
	for _, uid := range participantIDs {
		if uid != authorID {
			recipients = append(recipients, uid)
		}
	}
	s.unreadPush.submit(conv.ID, recipients)
	s.notifier.submit(res, recipients)
	return res, nil
}

// persistAndFanout 持锁执行：落库后立即推送，保证同一会话内的推送顺序
func (s *messageServiceImpl) persistAndFanout(ctx context.Context, msg *model.Message, reply *model.Message) (*dto.MessageDTO, []uint64, error) {
	conv, err := s.conversations.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv.IsGroup() && !conv.IsActive {
		return nil, nil, ErrChannelDisabled
	}

	// 同一会话内 created_at 严格递增
	now := database.Now()
	if !now.After(conv.LastMessageAt) {
		now = conv.LastMessageAt.Add(time.Microsecond)
	}
	msg.CreatedAt = now

	if err = s.messageRepo.CreateMessage(ctx, msg); err != nil {
		return nil, nil, err
	}

	res := s.toMessageDTO(msg, reply)
	s.fillAuthors(ctx, []*dto.MessageDTO{res})

	// 消息已落库，之后的失败不再回传给发送方
	participantIDs, err := s.conversations.ParticipantIDs(context.WithoutCancel(ctx), msg.ConversationID)
	if err != nil {
		log.ErrorContext(ctx, "获取会话成员失败", "conversation_id", msg.ConversationID, "err", err)
		return res, nil, nil
	}
	s.router.Fanout(msg.ConversationID, ws.NewEvent(consts.EventMessageNew, msg.ConversationID, res), participantIDs, 0)
	return res, participantIDs, nil
}

// resolveConversation 会话 ID、对方用户、社区三选一
func (s *messageServiceImpl) resolveConversation(ctx context.Context, authorID uint64, req *dto.SendMessageReq) (*model.Conversation, error) {
	refs := 0
	for _, id := range []uint64{req.ConversationID, req.CounterpartyID, req.CommunityID} {
		if id != 0 {
			refs++
		}
	}
	if refs != 1 {
		return nil, ErrConversationRef
	}

	switch {
	case req.CounterpartyID != 0:
		return s.conversations.GetOrCreateDirect(ctx, authorID, req.CounterpartyID)
	case req.CommunityID != 0:
		return s.conversations.GetOrCreateGroup(ctx, req.CommunityID, authorID)
	default:
		return s.conversations.EnsureParticipant(ctx, req.ConversationID, authorID)
	}
}

// List 按时间倒序分页拉取历史消息
func (s *messageServiceImpl) List(ctx context.Context, userID, convID uint64, page, limit int) ([]*dto.MessageDTO, error) {
	// 会话不存在时返回 NotFound，与无权访问区分
	if _, err := s.conversations.GetConversation(ctx, convID); err != nil {
		return nil, err
	}
	ok, err := s.conversations.CanAccess(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}

	page, limit = normalizePage(page, limit)
	msgs, err := s.messageRepo.ListMessages(ctx, convID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return s.toMessageDTOs(ctx, msgs)
}

// Search 在用户参与的会话中搜索，已删除的消息不参与
func (s *messageServiceImpl) Search(ctx context.Context, userID uint64, query string, convID uint64, page, limit int) ([]*dto.MessageDTO, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	page, limit = normalizePage(page, limit)
	msgs, err := s.messageRepo.SearchMessages(ctx, userID, query, convID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return s.toMessageDTOs(ctx, msgs)
}

// Delete 作者本人或管理员可删除，重复删除视为成功
func (s *messageServiceImpl) Delete(ctx context.Context, messageID, requesterID uint64) error {
	msg, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	if msg.AuthorID != requesterID {
		ok, err := s.authorizer.CanModerate(ctx, requesterID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDeleteForbidden
		}
	}
	if msg.Deleted {
		return nil
	}

	if err = s.messageRepo.SoftDelete(ctx, messageID, requesterID); err != nil {
		return err
	}
	log.InfoContext(ctx, "消息已删除", "message_id", messageID, "operator", requesterID)

	ids, err := s.conversations.ParticipantIDs(ctx, msg.ConversationID)
	if err != nil {
		log.ErrorContext(ctx, "获取会话成员失败", "conversation_id", msg.ConversationID, "err", err)
		return nil
	}
	s.router.Fanout(msg.ConversationID, ws.NewEvent(consts.EventMessageDeleted, msg.ConversationID, &dto.MessageDeletedDTO{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		DeletedBy:      requesterID,
	}), ids, 0)

	// 删除的消息不再计入未读
	others := make([]uint64, 0, len(ids))
	for _, uid := range ids {
		if uid != msg.AuthorID {
			others = append(others, uid)
		}
	}
	s.unreadPush.submit(msg.ConversationID, others)
	return nil
}

func (s *messageServiceImpl) Close() {
	s.unreadPush.close()
	s.notifier.close()
	log.Info("MessageService shut down gracefully")
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func (s *messageServiceImpl) toMessageDTO(m *model.Message, reply *model.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	if m.Deleted {
		d.Text = ""
	}
	if reply != nil {
		d.ReplyTo = replyPreview(reply)
	}
	return d
}

// toMessageDTOs 批量转换，作者资料与被回复消息各查一次
func (s *messageServiceImpl) toMessageDTOs(ctx context.Context, msgs []*model.Message) ([]*dto.MessageDTO, error) {
	replyIDs := make([]uint64, 0)
	for _, m := range msgs {
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}
	replies, err := s.messageRepo.GetMessagesByIDs(ctx, replyIDs)
	if err != nil {
		return nil, err
	}
	replyMap := make(map[uint64]*model.Message, len(replies))
	for _, r := range replies {
		replyMap[r.ID] = r
	}

	res := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		var reply *model.Message
		if m.ReplyToID != nil {
			reply = replyMap[*m.ReplyToID]
		}
		res = append(res, s.toMessageDTO(m, reply))
	}
	s.fillAuthors(ctx, res)
	return res, nil
}

// fillAuthors 补充作者摘要，查不到资料时只保留 ID
func (s *messageServiceImpl) fillAuthors(ctx context.Context, list []*dto.MessageDTO) {
	idSet := make(map[uint64]struct{})
	for _, d := range list {
		idSet[d.AuthorID] = struct{}{}
	}
	ids := make([]uint64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	details, err := s.userRepo.GetUserSimpleInfoByIds(ctx, ids)
	if err != nil {
		log.WarnContext(ctx, "获取用户资料失败", "err", err)
	}
	authors := make(map[uint64]*dto.AuthorDTO, len(details))
	for _, u := range details {
		authors[u.UserID] = &dto.AuthorDTO{ID: u.UserID, Name: u.Nickname, Avatar: u.AvatarURL}
	}

	for _, d := range list {
		if a, ok := authors[d.AuthorID]; ok {
			d.Author = a
		} else {
			d.Author = &dto.AuthorDTO{ID: d.AuthorID, Avatar: consts.DefaultAvatarURL}
		}
	}
}

func replyPreview(m *model.Message) *dto.ReplyPreviewDTO {
	p := &dto.ReplyPreviewDTO{ID: m.ID, AuthorID: m.AuthorID, Deleted: m.Deleted}
	if m.Deleted {
		p.Text = consts.DeletedPreviewText
		return p
	}
	p.Text = truncateRunes(m.Text, consts.ReplyPreviewLength)
	return p
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
