package repository

import (
	"Homestead/internal/model"
	"Homestead/internal/pkg/database"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateConversation_DuplicateKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepo(db)

	seedConversation(t, repo, "1_2", 1, 2)
	err := repo.CreateConversation(context.Background(), &model.Conversation{
		Kind:          model.ConversationKindDirect,
		CanonicalKey:  "1_2",
		IsActive:      true,
		LastMessageAt: database.Now(),
	}, []uint64{1, 2})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	var count int64
	require.NoError(t, db.Model(&model.Participant{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAddParticipant_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewConversationRepo(db)

	conv := seedConversation(t, repo, "7")
	require.NoError(t, repo.AddParticipant(ctx, conv.ID, 3))
	require.NoError(t, repo.AddParticipant(ctx, conv.ID, 3))

	ids, err := repo.GetParticipantIDs(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids)

	ok, err := repo.IsMember(ctx, conv.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IsMember(ctx, conv.ID, 4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUserConversationList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewConversationRepo(db)
	msgRepo := NewMessageRepo(db)

	older := seedConversation(t, repo, "1_2", 1, 2)
	newer := seedConversation(t, repo, "1_3", 1, 3)
	base := database.Now()
	seedMessage(t, msgRepo, older.ID, 2, "x", base.Add(time.Millisecond))
	seedMessage(t, msgRepo, newer.ID, 3, "y", base.Add(2*time.Millisecond))
	seedMessage(t, msgRepo, newer.ID, 3, "z", base.Add(3*time.Millisecond))
	seedMessage(t, msgRepo, newer.ID, 1, "own", base.Add(4*time.Millisecond))

	list, err := repo.GetUserConversationList(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ConversationID)
	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Equal(t, older.ID, list[1].ConversationID)
	assert.Equal(t, int64(1), list[1].UnreadCount)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewConversationRepo(db)
	msgRepo := NewMessageRepo(db)

	conv := seedConversation(t, repo, "1_2", 1, 2)
	m := seedMessage(t, msgRepo, conv.ID, 1, "x", database.Now())
	require.NoError(t, db.Create(&model.ReadReceipt{MessageID: m.ID, UserID: 2, ConversationID: conv.ID}).Error)

	require.NoError(t, repo.DeleteConversation(ctx, conv.ID))

	for _, table := range []any{&model.Conversation{}, &model.Participant{}, &model.Message{}, &model.ReadReceipt{}} {
		var count int64
		require.NoError(t, db.Model(table).Count(&count).Error)
		assert.Zero(t, count)
	}
}
