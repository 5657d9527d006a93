package handler

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/pkg/response"
	"Homestead/internal/pkg/util"
	"Homestead/internal/service"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	conversations service.ConversationService
	messages      service.MessageService
	reads         service.ReadService
	unread        service.UnreadService
}

func NewIMHandler(
	conversations service.ConversationService,
	messages service.MessageService,
	reads service.ReadService,
	unread service.UnreadService,
) *IMHandler {
	return &IMHandler{
		conversations: conversations,
		messages:      messages,
		reads:         reads,
		unread:        unread,
	}
}

// SendMessage 发送消息接口
func (s *IMHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	senderID := c.GetUint64("user_id")
	res, err := s.messages.Send(c.Request.Context(), senderID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkRead 标记已读接口
func (s *IMHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	res, err := s.reads.MarkRead(c.Request.Context(), req.ConversationID, userID, req.UpToMessageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetHistory 获取历史消息
func (s *IMHandler) GetHistory(c *gin.Context) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	res, err := s.messages.List(c.Request.Context(), userID, q.ConversationID, q.Page, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Search 搜索消息
func (s *IMHandler) Search(c *gin.Context) {
	var q dto.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	res, err := s.messages.Search(c.Request.Context(), userID, q.Query, q.ConversationID, q.Page, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetConversationList 获取会话列表
func (s *IMHandler) GetConversationList(c *gin.Context) {
	userID := c.GetUint64("user_id")
	res, err := s.conversations.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetUnread 全局未读
func (s *IMHandler) GetUnread(c *gin.Context) {
	userID := c.GetUint64("user_id")
	res, err := s.unread.GlobalUnread(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// OpenDirect 获取或创建单聊
func (s *IMHandler) OpenDirect(c *gin.Context) {
	var req dto.DirectConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	conv, err := s.conversations.GetOrCreateDirect(c.Request.Context(), userID, req.CounterpartyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	res := toConversationDTO(conv)
	res.PeerID = req.CounterpartyID
	response.Success(c, res)
}

// JoinConversation 显式加入会话
func (s *IMHandler) JoinConversation(c *gin.Context) {
	convID, ok := util.ParseID(c.Param("conversation_id"))
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	conv, err := s.conversations.EnsureParticipant(c.Request.Context(), convID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toConversationDTO(conv))
}

// DeleteMessage 删除消息
func (s *IMHandler) DeleteMessage(c *gin.Context) {
	msgID, ok := util.ParseID(c.Param("message_id"))
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	if err := s.messages.Delete(c.Request.Context(), msgID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SetConversationStatus 启用/禁用群聊
func (s *IMHandler) SetConversationStatus(c *gin.Context) {
	convID, ok := util.ParseID(c.Param("conversation_id"))
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var req dto.ConversationStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	if err := s.conversations.SetGroupActive(c.Request.Context(), convID, userID, *req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteConversation 删除会话
func (s *IMHandler) DeleteConversation(c *gin.Context) {
	convID, ok := util.ParseID(c.Param("conversation_id"))
	if !ok {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")
	if err := s.conversations.DeleteConversation(c.Request.Context(), convID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func toConversationDTO(conv *model.Conversation) *dto.ConversationDTO {
	return &dto.ConversationDTO{
		ConversationID: conv.ID,
		Kind:           conv.Kind,
		CanonicalKey:   conv.CanonicalKey,
		IsActive:       conv.IsActive,
		LastMessageAt:  conv.LastMessageAt,
	}
}
