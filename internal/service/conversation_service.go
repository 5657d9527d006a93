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
	"fmt"
	log "log/slog"
	"strconv"

	"gorm.io/gorm"
)

// ConversationService 会话目录：单聊与群聊共用一套会话模型，只有准入规则不同
type ConversationService interface {
	GetOrCreateDirect(ctx context.Context, userID, counterpartyID uint64) (*model.Conversation, error)
	GetOrCreateGroup(ctx context.Context, communityID, userID uint64) (*model.Conversation, error)
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	EnsureParticipant(ctx context.Context, convID, userID uint64) (*model.Conversation, error)
	CanAccess(ctx context.Context, convID, userID uint64) (bool, error)
	ParticipantIDs(ctx context.Context, convID uint64) ([]uint64, error)
	ListConversations(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	SetGroupActive(ctx context.Context, convID, moderatorID uint64, active bool) error
	DeleteConversation(ctx context.Context, convID, requesterID uint64) error
}

type conversationServiceImpl struct {
	convRepo   repository.ConversationRepo
	authorizer Authorizer
	router     ws.Router
}

func NewConversationService(convRepo repository.ConversationRepo, authorizer Authorizer, router ws.Router) ConversationService {
	return &conversationServiceImpl{
		convRepo:   convRepo,
		authorizer: authorizer,
		router:     router,
	}
}

// DirectKey 单聊会话标识，两个 ID 排序后拼接，(a,b) 与 (b,a) 得到同一个值
func DirectKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

// GroupKey 群聊会话标识，即所属社区 ID
func GroupKey(communityID uint64) string {
	return strconv.FormatUint(communityID, 10)
}

func parseDirectKey(key string) (uint64, uint64, error) {
	var u1, u2 uint64
	if _, err := fmt.Sscanf(key, "%d_%d", &u1, &u2); err != nil {
		return 0, 0, err
	}
	return u1, u2, nil
}

// GetOrCreateDirect 获取或创建单聊
func (s *conversationServiceImpl) GetOrCreateDirect(ctx context.Context, userID, counterpartyID uint64) (*model.Conversation, error) {
	if userID == 0 || counterpartyID == 0 {
		return nil, ErrParamInvalid
	}
	if userID == counterpartyID {
		return nil, ErrSelfConversation
	}
	return s.getOrCreate(ctx, model.ConversationKindDirect, DirectKey(userID, counterpartyID), []uint64{userID, counterpartyID})
}

// GetOrCreateGroup 获取或创建社区群聊，调用者必须是社区成员，并成为会话参与者
func (s *conversationServiceImpl) GetOrCreateGroup(ctx context.Context, communityID, userID uint64) (*model.Conversation, error) {
	if communityID == 0 || userID == 0 {
		return nil, ErrParamInvalid
	}
	ok, err := s.authorizer.IsCommunityMember(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotCommunityMember
	}
	conv, err := s.getOrCreate(ctx, model.ConversationKindGroup, GroupKey(communityID), []uint64{userID})
	if err != nil {
		return nil, err
	}
	if err = s.convRepo.AddParticipant(ctx, conv.ID, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// getOrCreate 先查后插，唯一索引冲突说明并发创建已有胜出者，回读返回
func (s *conversationServiceImpl) getOrCreate(ctx context.Context, kind int8, key string, memberIDs []uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversationByKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := database.Now()
	conv = &model.Conversation{
		Kind:          kind,
		CanonicalKey:  key,
		IsActive:      true,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.convRepo.CreateConversation(ctx, conv, memberIDs)
	if err == nil {
		log.InfoContext(ctx, "会话已创建", "conversation_id", conv.ID, "key", key)
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	conv, err = s.convRepo.GetConversationByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	// 胜出者创建时可能没带上当前成员
	for _, uid := range memberIDs {
		if err = s.convRepo.AddParticipant(ctx, conv.ID, uid); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

func (s *conversationServiceImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// checkAdmission 判断用户能否加入会话
func (s *conversationServiceImpl) checkAdmission(ctx context.Context, conv *model.Conversation, userID uint64) error {
	if conv.IsGroup() {
		communityID, err := strconv.ParseUint(conv.CanonicalKey, 10, 64)
		if err != nil {
			return err
		}
		ok, err := s.authorizer.IsCommunityMember(ctx, communityID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotCommunityMember
		}
		return nil
	}

	u1, u2, err := parseDirectKey(conv.CanonicalKey)
	if err != nil {
		return err
	}
	if userID != u1 && userID != u2 {
		return ErrNotParticipant
	}
	return nil
}

// EnsureParticipant 缺失时补齐参与者记录
func (s *conversationServiceImpl) EnsureParticipant(ctx context.Context, convID, userID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if isMember {
		return conv, nil
	}

	if err = s.checkAdmission(ctx, conv, userID); err != nil {
		return nil, err
	}
	if err = s.convRepo.AddParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// CanAccess 参与者，或群聊所属社区的成员
func (s *conversationServiceImpl) CanAccess(ctx context.Context, convID, userID uint64) (bool, error) {
	ok, err := s.authorizer.IsParticipant(ctx, convID, userID)
	if err != nil || ok {
		return ok, err
	}
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if !conv.IsGroup() {
		return false, nil
	}
	err = s.checkAdmission(ctx, conv, userID)
	if errors.Is(err, ErrForbidden) {
		return false, nil
	}
	return err == nil, err
}

func (s *conversationServiceImpl) ParticipantIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	return s.convRepo.GetParticipantIDs(ctx, convID)
}

// ListConversations 按最近消息倒序，附带未读数
func (s *conversationServiceImpl) ListConversations(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	list, err := s.convRepo.GetUserConversationList(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationDTO, 0, len(list))
	for _, m := range list {
		d := &dto.ConversationDTO{
			ConversationID: m.ConversationID,
			Kind:           m.Kind,
			CanonicalKey:   m.CanonicalKey,
			IsActive:       m.IsActive,
			LastMessageAt:  m.LastMessageAt,
			LastReadAt:     m.LastReadAt,
			UnreadCount:    m.UnreadCount,
		}
		if m.Kind == model.ConversationKindGroup {
			d.CommunityID, _ = strconv.ParseUint(m.CanonicalKey, 10, 64)
		} else if u1, u2, err := parseDirectKey(m.CanonicalKey); err == nil {
			d.PeerID = u1
			if u1 == userID {
				d.PeerID = u2
			}
		}
		res = append(res, d)
	}
	return res, nil
}

// SetGroupActive 管理员启用/禁用群聊，禁用后不能再发消息
func (s *conversationServiceImpl) SetGroupActive(ctx context.Context, convID, moderatorID uint64, active bool) error {
	ok, err := s.authorizer.CanModerate(ctx, moderatorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotModerator
	}
	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return ErrNotGroup
	}
	if conv.IsActive == active {
		return nil
	}
	if err = s.convRepo.SetActive(ctx, convID, active); err != nil {
		return err
	}
	log.InfoContext(ctx, "群聊状态变更", "conversation_id", convID, "active", active, "operator", moderatorID)

	s.broadcast(ctx, convID, consts.EventConversationState, &dto.ConversationStateDTO{
		ConversationID: convID,
		IsActive:       active,
	})
	return nil
}

// DeleteConversation 群聊需要管理员，单聊参与者本人即可；消息、回执、成员一并删除
func (s *conversationServiceImpl) DeleteConversation(ctx context.Context, convID, requesterID uint64) error {
	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if conv.IsGroup() {
		ok, err := s.authorizer.CanModerate(ctx, requesterID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotModerator
		}
	} else {
		ok, err := s.authorizer.IsParticipant(ctx, convID, requesterID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotParticipant
		}
	}

	// 删除前取成员，删除后已无从查起
	ids, err := s.convRepo.GetParticipantIDs(ctx, convID)
	if err != nil {
		return err
	}
	if err = s.convRepo.DeleteConversation(ctx, convID); err != nil {
		return err
	}
	log.InfoContext(ctx, "会话已删除", "conversation_id", convID, "operator", requesterID)

	s.router.Fanout(convID, ws.NewEvent(consts.EventConversationDeleted, convID, &dto.ConversationStateDTO{
		ConversationID: convID,
		Deleted:        true,
	}), ids, 0)
	return nil
}

func (s *conversationServiceImpl) broadcast(ctx context.Context, convID uint64, event string, data any) {
	ids, err := s.convRepo.GetParticipantIDs(ctx, convID)
	if err != nil {
		log.ErrorContext(ctx, "获取会话成员失败", "conversation_id", convID, "err", err)
		return
	}
	s.router.Fanout(convID, ws.NewEvent(event, convID, data), ids, 0)
}
