package model

import "time"

// CommunityMember 社区成员关系，由社区模块维护，这里只读
type CommunityMember struct {
	CommunityID uint64    `gorm:"primaryKey;autoIncrement:false" json:"communityId"`
	UserID      uint64    `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (CommunityMember) TableName() string { return "community_members" }
