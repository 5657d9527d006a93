package api

import "Homestead/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	IMHandler    *handler.IMHandler
	WSHandler    *handler.WsHandler
	// 未启用 Mongo 时为 nil
	InboxHandler *handler.InboxHandler
}
