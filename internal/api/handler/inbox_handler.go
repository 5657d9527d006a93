package handler

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/pkg/mongo"
	"Homestead/internal/pkg/response"
	"Homestead/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	inboxDefaultLimit = 20
	inboxMaxLimit     = 100
)

// InboxHandler 站内信收件箱，仅在启用 Mongo 时挂载
type InboxHandler struct {
	inbox mongo.InboxRepo
}

func NewInboxHandler(inbox mongo.InboxRepo) *InboxHandler {
	return &InboxHandler{inbox: inbox}
}

// GetInbox 获取当前用户的离线消息通知
func (s *InboxHandler) GetInbox(c *gin.Context) {
	var q dto.InboxQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = inboxDefaultLimit
	}
	if q.Limit > inboxMaxLimit {
		q.Limit = inboxMaxLimit
	}

	userID := c.GetUint64("user_id")
	list, err := s.inbox.GetNotificationList(c.Request.Context(), userID, int64(q.Limit), int64((q.Page-1)*q.Limit))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []*mongo.InboxModel{}
	}
	response.Success(c, list)
}
