package model

import "time"

// UserRole 用户与角色的授予关系，重复授予由联合主键去重
type UserRole struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoleID    uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_role_id" json:"role_id"`
	CreatedAt time.Time `gorm:"precision:6" json:"created_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
