package security

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserClaims 定义了我们 Token 中需要包含的业务信息
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole 是否拥有任一角色
func (c *UserClaims) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, r := range c.Roles {
			if r == want {
				return true
			}
		}
	}
	return false
}
