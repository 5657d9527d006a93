package logger

import (
	"context"
	log "log/slog"
)

const (
	// TraceIDKey 定义 Context 中的 Key
	TraceIDKey = "trace_id"
	// UserIDKey 鉴权后写入，HTTP 请求与长连接共用
	UserIDKey = "user_id"
)

// ContextHandler 从 ctx 中提取 trace_id 与 user_id
type ContextHandler struct {
	log.Handler
}

func (h *ContextHandler) Handle(ctx context.Context, r log.Record) error {
	if ctx != nil {
		if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
			r.AddAttrs(log.String(TraceIDKey, traceID))
		}
		if userID, ok := ctx.Value(UserIDKey).(uint64); ok && userID != 0 {
			r.AddAttrs(log.Uint64(UserIDKey, userID))
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithUser 长连接没有经过 gin 中间件，在建立连接时手动注入
func WithUser(ctx context.Context, traceID string, userID uint64) context.Context {
	ctx = context.WithValue(ctx, TraceIDKey, traceID)
	return context.WithValue(ctx, UserIDKey, userID)
}
