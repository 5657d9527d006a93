package handler

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/api/middleware"
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/logger"
	"Homestead/internal/pkg/response"
	"Homestead/internal/pkg/util"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/service"
	"context"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WsError error 事件数据
type WsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type WsHandler struct {
	hub           *ws.Hub
	conversations service.ConversationService
	messages      service.MessageService
	reads         service.ReadService
	queueSize     int
}

func NewWsHandler(
	hub *ws.Hub,
	conversations service.ConversationService,
	messages service.MessageService,
	reads service.ReadService,
	queueSize int,
) *WsHandler {
	return &WsHandler{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		reads:         reads,
		queueSize:     queueSize,
	}
}

func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := middleware.Authenticate(c.Request.Context(), token)
	if err != nil {
		log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	client := ws.NewClient(userID, conn, s.queueSize)
	s.hub.Register(client)
	log.Info("用户 WS 连接已建立", "user_id", userID, "client_id", client.ID)

	// 连接断开不影响已提交的写入，后续操作使用独立的 ctx
	ctx := logger.WithUser(context.Background(), uuid.New().String(), userID)
	go client.WritePump()
	client.ReadPump(ctx, s.HandleFrame)

	s.hub.Unregister(client.ID)
	log.Info("用户 WS 连接已断开", "user_id", userID, "client_id", client.ID)
}

// HandleFrame 处理一条上行帧，结果与错误都只回给当前连接
func (s *WsHandler) HandleFrame(ctx context.Context, c *ws.Client, payload []byte) {
	var frame dto.WsFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		replyError(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&frame); err != nil {
		replyError(c, service.ErrParamInvalid)
		return
	}

	switch frame.Type {
	case "join":
		var req dto.WsJoinReq
		if err := decodeFrame(frame.Data, &req); err != nil {
			replyError(c, err)
			return
		}
		conv, err := s.conversations.EnsureParticipant(ctx, req.ConversationID, c.UserID)
		if err != nil {
			replyError(c, err)
			return
		}
		c.Reply(ws.NewEvent(consts.EventConversationJoined, conv.ID, toConversationDTO(conv)))

	case "send":
		var req dto.SendMessageReq
		if err := decodeFrame(frame.Data, &req); err != nil {
			replyError(c, err)
			return
		}
		// 成功后 message.new 通过广播送达，包括当前连接
		if _, err := s.messages.Send(ctx, c.UserID, &req); err != nil {
			replyError(c, err)
		}

	case "markRead":
		var req dto.MarkReadReq
		if err := decodeFrame(frame.Data, &req); err != nil {
			replyError(c, err)
			return
		}
		if _, err := s.reads.MarkRead(ctx, req.ConversationID, c.UserID, req.UpToMessageID); err != nil {
			replyError(c, err)
		}
	}
}

func decodeFrame(data []byte, v any) error {
	if len(data) == 0 {
		return service.ErrParamInvalid
	}
	if err := json.Unmarshal(data, v); err != nil {
		return service.ErrParamInvalid
	}
	if err := util.ValidateDTO(v); err != nil {
		return service.ErrParamInvalid
	}
	return nil
}

func replyError(c *ws.Client, err error) {
	code, ok := service.ErrorCode(err)
	msg := err.Error()
	if !ok {
		log.Error("WS 请求处理失败", "user_id", c.UserID, "err", err)
		msg = service.UnExpectedError.Error()
	}
	c.Reply(ws.NewEvent(consts.EventError, 0, &WsError{Code: code, Message: msg}))
}
