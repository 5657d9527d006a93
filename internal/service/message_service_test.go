package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_DirectFanoutAndNotify(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.userRepo.UpsertUserDetail(context.Background(), &model.UserDetail{UserID: 1, Nickname: "alice", AvatarURL: "a.png"}))
	senderPhone := f.connect(1)
	peer := f.connect(2)

	msg := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "  hello  "})
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, uint64(1), msg.AuthorID)
	require.NotNil(t, msg.Author)
	assert.Equal(t, "alice", msg.Author.Name)
	assert.Equal(t, "a.png", msg.Author.Avatar)

	peerEvents := eventsUntil(t, peer, "unread.update", 1)
	news := ofType(peerEvents, "message.new")
	require.Len(t, news, 1)
	assert.Equal(t, msg.ConversationID, news[0].ConversationID)
	var got dto.MessageDTO
	require.NoError(t, json.Unmarshal(news[0].Data, &got))
	assert.Equal(t, msg.ID, got.ID)

	unread := ofType(peerEvents, "unread.update")
	require.Len(t, unread, 1)
	var badge dto.UnreadUpdateDTO
	require.NoError(t, json.Unmarshal(unread[0].Data, &badge))
	assert.Equal(t, int64(1), badge.Count)
	assert.Equal(t, int64(1), badge.Total)

	// 发送者的其他设备同样收到，但不推送角标
	senderEvents := events(senderPhone)
	assert.Len(t, ofType(senderEvents, "message.new"), 1)
	assert.Empty(t, ofType(senderEvents, "unread.update"))

	f.notifier.wait(t)
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, []uint64{2}, f.notifier.calls[0].recipientIDs)
	assert.Equal(t, msg.ID, f.notifier.calls[0].msg.ID)
}

func TestSend_NotifierFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	f.notifier.mu.Lock()
	f.notifier.err = errors.New("broker down")
	f.notifier.mu.Unlock()

	msg, err := f.messages.Send(context.Background(), 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "hi"})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	f.notifier.wait(t)
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: strings.Repeat("字", 101)})
	assert.ErrorIs(t, err, ErrTextTooLong)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: strings.Repeat("字", 100)})
	assert.NoError(t, err)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{Text: "hi"})
	assert.ErrorIs(t, err, ErrConversationRef)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{ConversationID: 1, CounterpartyID: 2, Text: "hi"})
	assert.ErrorIs(t, err, ErrConversationRef)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{CounterpartyID: 1, Text: "hi"})
	assert.ErrorIs(t, err, ErrSelfConversation)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{ConversationID: 777, Text: "hi"})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestSend_NonParticipantRejected(t *testing.T) {
	f := newFixture(t)
	msg := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "hi"})

	_, err := f.messages.Send(context.Background(), 3, &dto.SendMessageReq{ConversationID: msg.ConversationID, Text: "intrude"})
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSend_CrossConversationReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.send(t, 5, &dto.SendMessageReq{CounterpartyID: 6, Text: "elsewhere"})
	base := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "hi"})

	_, err := f.messages.Send(ctx, 1, &dto.SendMessageReq{ConversationID: base.ConversationID, Text: "re", ReplyToID: ptr(other.ID)})
	assert.ErrorIs(t, err, ErrCrossConversationReply)
	assert.ErrorIs(t, err, ErrForbidden)

	var count int64
	require.NoError(t, f.db.Model(&model.Message{}).Where("conversation_id = ?", base.ConversationID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{ConversationID: base.ConversationID, Text: "re", ReplyToID: ptr(uint64(9999))})
	assert.ErrorIs(t, err, ErrMessageNotFound)

	reply, err := f.messages.Send(ctx, 2, &dto.SendMessageReq{ConversationID: base.ConversationID, Text: "re", ReplyToID: ptr(base.ID)})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, base.ID, reply.ReplyTo.ID)
	assert.Equal(t, "hi", reply.ReplyTo.Text)
}

func TestSend_DisabledGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.communityRepo.AddMember(ctx, 10, 1))
	require.NoError(t, f.communityRepo.AddMember(ctx, 10, 2))
	msg := f.send(t, 1, &dto.SendMessageReq{CommunityID: 10, Text: "hello group"})
	f.send(t, 2, &dto.SendMessageReq{ConversationID: msg.ConversationID, Text: "hi"})

	require.NoError(t, f.rolesRepo.AddRoleToUser(ctx, 77, model.RoleAdmin))
	require.NoError(t, f.conversations.SetGroupActive(ctx, msg.ConversationID, 77, false))

	_, err := f.messages.Send(ctx, 1, &dto.SendMessageReq{ConversationID: msg.ConversationID, Text: "still there?"})
	assert.ErrorIs(t, err, ErrChannelDisabled)
	_, err = f.messages.Send(ctx, 1, &dto.SendMessageReq{CommunityID: 10, Text: "still there?"})
	assert.ErrorIs(t, err, ErrChannelDisabled)

	// 禁用只拦截发送，历史与已读照常
	history, err := f.messages.List(ctx, 1, msg.ConversationID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	res, err := f.reads.MarkRead(ctx, msg.ConversationID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewlyReadCount)
	count, err := f.unread.CountUnread(ctx, msg.ConversationID, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, f.conversations.SetGroupActive(ctx, msg.ConversationID, 77, true))
	f.send(t, 1, &dto.SendMessageReq{ConversationID: msg.ConversationID, Text: "back"})
}

func TestSend_GroupFanoutToMaterializedParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, uid := range []uint64{1, 2, 3} {
		require.NoError(t, f.communityRepo.AddMember(ctx, 20, uid))
	}
	first := f.send(t, 1, &dto.SendMessageReq{CommunityID: 20, Text: "hi all"})
	_, err := f.conversations.EnsureParticipant(ctx, first.ConversationID, 2)
	require.NoError(t, err)

	c2 := f.connect(2)
	c3 := f.connect(3)
	f.send(t, 1, &dto.SendMessageReq{ConversationID: first.ConversationID, Text: "second"})

	assert.Len(t, ofType(events(c2), "message.new"), 1)
	// 3 还没有加入会话
	assert.Empty(t, ofType(events(c3), "message.new"))

	_, err = f.messages.Send(ctx, 4, &dto.SendMessageReq{CommunityID: 20, Text: "outsider"})
	assert.ErrorIs(t, err, ErrNotCommunityMember)
}

func TestSend_OrderWithinConversation(t *testing.T) {
	f := newFixture(t)
	base := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "start"})
	watcher := f.connect(2)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := uint64(1 + i%2)
			_, err := f.messages.Send(context.Background(), author, &dto.SendMessageReq{ConversationID: base.ConversationID, Text: "msg"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	news := ofType(events(watcher), "message.new")
	require.Len(t, news, 20)
	var prev dto.MessageDTO
	for i, ev := range news {
		var cur dto.MessageDTO
		require.NoError(t, json.Unmarshal(ev.Data, &cur))
		if i > 0 {
			assert.Greater(t, cur.ID, prev.ID)
			assert.True(t, cur.CreatedAt.After(prev.CreatedAt))
		}
		prev = cur
	}
}

func TestList_NewestFirstWithPreviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.userRepo.UpsertUserDetail(ctx, &model.UserDetail{UserID: 2, Nickname: "bob", AvatarURL: "b.png"}))

	long := strings.Repeat("长", 60)
	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: long})
	b := f.send(t, 2, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "reply", ReplyToID: ptr(a.ID)})
	c := f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "third"})

	list, err := f.messages.List(ctx, 2, a.ConversationID, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint64{c.ID, b.ID, a.ID}, []uint64{list[0].ID, list[1].ID, list[2].ID})

	require.NotNil(t, list[1].ReplyTo)
	assert.Equal(t, 50, len([]rune(list[1].ReplyTo.Text)))
	assert.Equal(t, "bob", list[1].Author.Name)
	// 没有资料的用户只带 ID 与默认头像
	assert.Equal(t, uint64(1), list[0].Author.ID)
	assert.Equal(t, "default_avatar.png", list[0].Author.Avatar)

	page2, err := f.messages.List(ctx, 2, a.ConversationID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, a.ID, page2[0].ID)

	// 被回复的消息删除后，预览显示占位文本，原消息保留位置但正文清空
	require.NoError(t, f.messages.Delete(ctx, a.ID, 1))
	list, err = f.messages.List(ctx, 1, a.ConversationID, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[2].Deleted)
	assert.Empty(t, list[2].Text)
	assert.Equal(t, "[消息已删除]", list[1].ReplyTo.Text)
	assert.True(t, list[1].ReplyTo.Deleted)

	_, err = f.messages.List(ctx, 3, a.ConversationID, 1, 10)
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestList_MissingConversation(t *testing.T) {
	f := newFixture(t)
	_, err := f.messages.List(context.Background(), 1, 9999, 1, 20)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1 := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "Hello World"})
	f.send(t, 2, &dto.SendMessageReq{ConversationID: m1.ConversationID, Text: "nothing here"})
	m3 := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 3, Text: "hello again, 100% sure_thing"})
	f.send(t, 4, &dto.SendMessageReq{CounterpartyID: 5, Text: "hello from strangers"})

	res, err := f.messages.Search(ctx, 1, "HELLO", 0, 1, 20)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, m3.ID, res[0].ID)
	assert.Equal(t, m1.ID, res[1].ID)

	res, err = f.messages.Search(ctx, 1, "hello", m1.ConversationID, 1, 20)
	require.NoError(t, err)
	require.Len(t, res, 1)

	// 通配符按字面匹配
	res, err = f.messages.Search(ctx, 1, "100%", 0, 1, 20)
	require.NoError(t, err)
	require.Len(t, res, 1)
	res, err = f.messages.Search(ctx, 1, "o_a", 0, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, res)

	// 用户 2 只能搜到自己会话里的消息
	res, err = f.messages.Search(ctx, 2, "hello", 0, 1, 20)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, m1.ID, res[0].ID)

	require.NoError(t, f.messages.Delete(ctx, m1.ID, 1))
	res, err = f.messages.Search(ctx, 2, "hello", 0, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = f.messages.Search(ctx, 1, "  ", 0, 1, 20)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestDelete_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "oops"})
	peer := f.connect(2)

	err := f.messages.Delete(ctx, msg.ID, 2)
	assert.ErrorIs(t, err, ErrDeleteForbidden)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.messages.Delete(ctx, msg.ID, 1))
	require.NoError(t, f.messages.Delete(ctx, msg.ID, 1))

	deleted := ofType(events(peer), "message.deleted")
	require.Len(t, deleted, 1)

	var stored model.Message
	require.NoError(t, f.db.First(&stored, msg.ID).Error)
	assert.True(t, stored.Deleted)
	assert.Equal(t, uint64(1), stored.DeletedBy)
	assert.NotNil(t, stored.DeletedAt)

	err = f.messages.Delete(ctx, 12345, 1)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDelete_ByModerator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "spam"})
	require.NoError(t, f.rolesRepo.AddRoleToUser(ctx, 42, model.RoleModerator))
	require.NoError(t, f.messages.Delete(ctx, msg.ID, 42))

	var stored model.Message
	require.NoError(t, f.db.First(&stored, msg.ID).Error)
	assert.Equal(t, uint64(42), stored.DeletedBy)

	// 删除的消息不计入未读
	count, err := f.unread.CountUnread(ctx, msg.ConversationID, 2)
	require.NoError(t, err)
	assert.Zero(t, count)
}
