package middleware

import (
	"Homestead/internal/pkg/consts"
	"Homestead/internal/pkg/logger"
	"Homestead/internal/pkg/redis"
	"Homestead/internal/pkg/response"
	"Homestead/internal/pkg/security"
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	ErrTokenMalformed = errors.New("Token 缺失或格式错误")
	ErrTokenInvalid   = errors.New("Token 无效或已过期")
)

// IsRevoked 查询 token 是否已在 Redis 中注销
var IsRevoked = func(ctx context.Context, signature string) (bool, error) {
	value, err := redis.GetValue(ctx, consts.TokenRevokedKey+signature)
	if err != nil {
		return false, err
	}
	return value != "", nil
}

// Authenticate 校验 token 并返回身份信息，HTTP 与长连接共用
func Authenticate(ctx context.Context, tokenString string) (*security.UserClaims, error) {
	signature, err := security.ExtractSignature(tokenString)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	revoked, err := IsRevoked(ctx, signature)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	claims, err := security.ValidateToken(tokenString)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// AuthMiddleware 负责验证 JWT 并将用户身份信息注入 Context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Fail(c, response.Unauthorized, ErrTokenMalformed.Error())
			c.Abort()
			return
		}

		claims, err := Authenticate(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if errors.Is(err, ErrTokenMalformed) || errors.Is(err, ErrTokenInvalid) {
				response.Fail(c, response.Unauthorized, err.Error())
			} else {
				response.Fail(c, response.InternalServerError, "未知错误")
			}
			c.Abort()
			return
		}

		c.Set(logger.UserIDKey, claims.UserID)
		c.Set("roles", claims.Roles)

		newCtx := context.WithValue(c.Request.Context(), logger.UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(newCtx)

		c.Next()
	}
}
