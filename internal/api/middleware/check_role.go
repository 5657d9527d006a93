package middleware

import (
	"Homestead/internal/pkg/response"
	"Homestead/internal/pkg/security"

	"github.com/gin-gonic/gin"
)

// CheckRoles 检查当前用户是否拥有至少一个指定的角色
func CheckRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := &security.UserClaims{Roles: c.GetStringSlice("roles")}
		if !claims.HasRole(requiredRoles...) {
			response.Fail(c, response.Forbidden, "权限不足：无权访问该资源")
			c.Abort()
			return
		}

		c.Next()
	}
}
