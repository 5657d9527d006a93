package logger

import (
	"Homestead/internal/api/config"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupGin 访问日志按 JSON 行输出，与 slog 保持同一格式便于 Logstash 收集
func SetupGin(r *gin.Engine) {
	// 未加载配置时（测试等）不附带 Logstash 字段
	var token, index string
	if config.Cfg != nil {
		token, index = config.Cfg.Logstash.Token, config.Cfg.Logstash.Index
	}

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		SkipPaths: []string{"/api/ping"},
		Formatter: func(p gin.LogFormatterParams) string {
			var traceID string
			var userID uint64
			if p.Keys != nil {
				if id, ok := p.Keys[TraceIDKey].(string); ok {
					traceID = id
				}
				if uid, ok := p.Keys[UserIDKey].(uint64); ok {
					userID = uid
				}
			}

			if traceID == "" && p.Request != nil {
				if id, ok := p.Request.Context().Value(TraceIDKey).(string); ok {
					traceID = id
				}
			}

			return fmt.Sprintf(
				`{"time":"%s","level":"INFO","msg":"GIN_ACCESS","trace_id":"%s","log_token":"%s","target_index":"%s","method":"%s","path":"%s","status":%d,"user_id":%d,"client_ip":"%s","latency":"%v"}`+"\n",
				p.TimeStamp.Format(time.RFC3339),
				traceID,
				token,
				index,
				p.Method,
				p.Path,
				p.StatusCode,
				userID,
				p.ClientIP,
				p.Latency,
			)
		},
	}))

	r.Use(gin.Recovery())
}
