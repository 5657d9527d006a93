package repository

import (
	"Homestead/internal/model"
	"context"

	"gorm.io/gorm"
)

type UserRolesRepo interface {
	GetUserRoles(ctx context.Context, userId uint64) ([]*model.Role, error)
	HasAnyRole(ctx context.Context, userId uint64, names ...string) (bool, error)
	AddRoleToUser(ctx context.Context, userId uint64, roleName string) error
}

type UserRolesRepoImpl struct {
	db *gorm.DB
}

func NewUserRolesRepo(db *gorm.DB) UserRolesRepo {
	return &UserRolesRepoImpl{db: db}
}

func (s *UserRolesRepoImpl) GetUserRoles(ctx context.Context, userId uint64) ([]*model.Role, error) {
	var roles []*model.Role
	err := s.db.WithContext(ctx).
		Table("roles").
		Select("roles.*").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userId).
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// HasAnyRole 用户是否拥有任一指定角色
func (s *UserRolesRepoImpl) HasAnyRole(ctx context.Context, userId uint64, names ...string) (bool, error) {
	if len(names) == 0 {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Table("user_roles").
		Joins("JOIN roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userId).
		Where("roles.name IN ?", names).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddRoleToUser 角色不存在时一并创建
func (s *UserRolesRepoImpl) AddRoleToUser(ctx context.Context, userId uint64, roleName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role := model.Role{Name: roleName}
		if err := tx.Where("name = ?", roleName).FirstOrCreate(&role).Error; err != nil {
			return err
		}
		return tx.Create(&model.UserRole{UserID: userId, RoleID: role.ID}).Error
	})
}
