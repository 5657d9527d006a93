package api

import (
	"Homestead/internal/api/middleware"
	"Homestead/internal/model"
	"Homestead/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			imGroup.GET("", group.WSHandler.Connect)
			authGroup := imGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/send", group.IMHandler.SendMessage)
				authGroup.POST("/read", group.IMHandler.MarkRead)
				authGroup.GET("/history", group.IMHandler.GetHistory)
				authGroup.GET("/search", group.IMHandler.Search)
				authGroup.GET("/list", group.IMHandler.GetConversationList)
				authGroup.GET("/unread", group.IMHandler.GetUnread)
				authGroup.POST("/conversations/direct", group.IMHandler.OpenDirect)
				authGroup.POST("/conversations/:conversation_id/join", group.IMHandler.JoinConversation)
				authGroup.DELETE("/conversations/:conversation_id", group.IMHandler.DeleteConversation)
				authGroup.DELETE("/messages/:message_id", group.IMHandler.DeleteMessage)
				if group.InboxHandler != nil {
					authGroup.GET("/inbox", group.InboxHandler.GetInbox)
				}
			}

			// 需要登录 & 拥有管理角色，服务层会再按角色表校验一次
			adminGroup := authGroup.Group("")
			adminGroup.Use(middleware.CheckRoles(model.RoleAdmin, model.RoleModerator))
			{
				adminGroup.PUT("/conversations/:conversation_id/status", group.IMHandler.SetConversationStatus)
			}
		}
	}

	return r
}
