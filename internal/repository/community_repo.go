package repository

import (
	"Homestead/internal/model"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunityRepo 社区成员关系查询，成员的增删由社区模块负责
type CommunityRepo interface {
	IsMember(ctx context.Context, communityID, userID uint64) (bool, error)
	AddMember(ctx context.Context, communityID, userID uint64) error
}

type communityRepoImpl struct {
	db *gorm.DB
}

func NewCommunityRepo(db *gorm.DB) CommunityRepo {
	return &communityRepoImpl{db: db}
}

func (s *communityRepoImpl) IsMember(ctx context.Context, communityID, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CommunityMember{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *communityRepoImpl) AddMember(ctx context.Context, communityID, userID uint64) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.CommunityMember{
			CommunityID: communityID,
			UserID:      userID,
			JoinedAt:    s.db.NowFunc(),
		}).Error
}
