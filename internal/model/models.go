package model

// All 需要 AutoMigrate 的全部模型
func All() []any {
	return []any{
		&Conversation{},
		&Participant{},
		&Message{},
		&ReadReceipt{},
		&CommunityMember{},
		&UserDetail{},
		&Role{},
		&UserRole{},
	}
}
