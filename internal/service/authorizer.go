package service

import (
	"Homestead/internal/model"
	"Homestead/internal/repository"
	"context"
)

// Authorizer 权限判定，数据来自角色表与社区成员表
type Authorizer interface {
	IsParticipant(ctx context.Context, convID, userID uint64) (bool, error)
	CanModerate(ctx context.Context, userID uint64) (bool, error)
	IsCommunityMember(ctx context.Context, communityID, userID uint64) (bool, error)
}

type authorizerImpl struct {
	convRepo      repository.ConversationRepo
	rolesRepo     repository.UserRolesRepo
	communityRepo repository.CommunityRepo
}

func NewAuthorizer(convRepo repository.ConversationRepo, rolesRepo repository.UserRolesRepo, communityRepo repository.CommunityRepo) Authorizer {
	return &authorizerImpl{
		convRepo:      convRepo,
		rolesRepo:     rolesRepo,
		communityRepo: communityRepo,
	}
}

func (s *authorizerImpl) IsParticipant(ctx context.Context, convID, userID uint64) (bool, error) {
	return s.convRepo.IsMember(ctx, convID, userID)
}

func (s *authorizerImpl) CanModerate(ctx context.Context, userID uint64) (bool, error) {
	return s.rolesRepo.HasAnyRole(ctx, userID, model.RoleAdmin, model.RoleModerator)
}

func (s *authorizerImpl) IsCommunityMember(ctx context.Context, communityID, userID uint64) (bool, error) {
	return s.communityRepo.IsMember(ctx, communityID, userID)
}
