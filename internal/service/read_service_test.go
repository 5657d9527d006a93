package service

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/model"
	"Homestead/internal/repository"
	"context"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkRead_CountsAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	f.send(t, 2, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "mine"})
	c := f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "c"})

	res, err := f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(c.ID))
	require.NoError(t, err)
	// 自己发的消息不计入
	assert.Equal(t, 2, res.NewlyReadCount)
	assert.True(t, res.ReadAt.Equal(c.CreatedAt))

	res, err = f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(c.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewlyReadCount)
	assert.True(t, res.ReadAt.Equal(c.CreatedAt))

	var receipts int64
	require.NoError(t, f.db.Model(&model.ReadReceipt{}).Where("user_id = ?", 2).Count(&receipts).Error)
	assert.Equal(t, int64(2), receipts)
}

func TestMarkRead_WatermarkNeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	b := f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "b"})

	_, err := f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(b.ID))
	require.NoError(t, err)
	before := f.participant(t, a.ConversationID, 2).LastReadAt

	res, err := f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(a.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewlyReadCount)
	assert.True(t, res.ReadAt.Equal(b.CreatedAt))

	after := f.participant(t, a.ConversationID, 2).LastReadAt
	assert.True(t, before.Equal(after))
	assert.True(t, after.Equal(b.CreatedAt))
}

func TestMarkRead_PartialThenRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "b"})
	f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "c"})

	res, err := f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(a.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewlyReadCount)

	count, err := f.unread.CountUnread(ctx, a.ConversationID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	res, err = f.reads.MarkRead(ctx, a.ConversationID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewlyReadCount)

	count, err = f.unread.CountUnread(ctx, a.ConversationID, 2)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkRead_ForeignUpToFallsBackToLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.send(t, 7, &dto.SendMessageReq{CounterpartyID: 8, Text: "x"})
	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	b := f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "b"})

	res, err := f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(other.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewlyReadCount)
	assert.True(t, res.ReadAt.Equal(b.CreatedAt))

	res, err = f.reads.MarkRead(ctx, a.ConversationID, 2, ptr(uint64(99999)))
	require.NoError(t, err)
	assert.Zero(t, res.NewlyReadCount)
}

func TestMarkRead_EmptyConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.conversations.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	res, err := f.reads.MarkRead(ctx, conv.ID, 2, nil)
	require.NoError(t, err)
	assert.Zero(t, res.NewlyReadCount)
	assert.True(t, res.ReadAt.Equal(model.EpochZero))
}

func TestMarkRead_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reads.MarkRead(ctx, 404, 1, nil)
	assert.ErrorIs(t, err, ErrNotMember)

	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	_, err = f.reads.MarkRead(ctx, a.ConversationID, 3, nil)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.reads.MarkRead(ctx, 0, 1, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMarkRead_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "0"})
	for i := 0; i < 9; i++ {
		f.send(t, 1, &dto.SendMessageReq{ConversationID: first.ConversationID, Text: "more"})
	}

	const callers = 8
	counts := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.reads.MarkRead(ctx, first.ConversationID, 2, nil)
			if assert.NoError(t, err) {
				counts[i] = res.NewlyReadCount
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	// 不重复计数也不漏计
	assert.Equal(t, 10, total)

	count, err := f.unread.CountUnread(ctx, first.ConversationID, 2)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkRead_PushesReceiptAndBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := f.connect(1)
	reader := f.connect(2)
	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	// 先消费发送产生的事件
	_ = eventsUntil(t, reader, "unread.update", 1)
	_ = events(author)

	_, err := f.reads.MarkRead(ctx, a.ConversationID, 2, nil)
	require.NoError(t, err)

	receipts := ofType(events(author), "message.read")
	require.Len(t, receipts, 1)
	var rr dto.ReadReceiptDTO
	require.NoError(t, json.Unmarshal(receipts[0].Data, &rr))
	assert.Equal(t, uint64(2), rr.UserID)

	readerEvents := events(reader)
	assert.Len(t, ofType(readerEvents, "message.read"), 1)
	badges := ofType(readerEvents, "unread.update")
	require.Len(t, badges, 1)
	var badge dto.UnreadUpdateDTO
	require.NoError(t, json.Unmarshal(badges[0].Data, &badge))
	assert.Zero(t, badge.Count)
	assert.Zero(t, badge.Total)

	// 水位未推进时不再推送
	_, err = f.reads.MarkRead(ctx, a.ConversationID, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, events(author))
}

func TestMarkRead_GroupMemberJoinsLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.communityRepo.AddMember(ctx, 30, 1))
	require.NoError(t, f.communityRepo.AddMember(ctx, 30, 2))
	msg := f.send(t, 1, &dto.SendMessageReq{CommunityID: 30, Text: "welcome"})

	res, err := f.reads.MarkRead(ctx, msg.ConversationID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewlyReadCount)
	f.participant(t, msg.ConversationID, 2)
}

// zeroRowsReadRepo 模拟批量去重插入报告 0 行的驱动
type zeroRowsReadRepo struct {
	repository.ReadStateRepo
}

func (r zeroRowsReadRepo) WithTx(ctx context.Context, fn func(tx repository.ReadStateTx) error) error {
	return r.ReadStateRepo.WithTx(ctx, func(tx repository.ReadStateTx) error {
		return fn(zeroRowsTx{tx})
	})
}

type zeroRowsTx struct {
	repository.ReadStateTx
}

func (tx zeroRowsTx) InsertReceipts(receipts []*model.ReadReceipt) (int64, error) {
	if _, err := tx.ReadStateTx.InsertReceipts(receipts); err != nil {
		return 0, err
	}
	return 0, nil
}

func TestMarkRead_ZeroAffectedRowsFallsBackToCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convRepo := repository.NewConversationRepo(f.db)
	reads := NewReadService(f.conversations, repository.NewMessageRepo(f.db),
		zeroRowsReadRepo{repository.NewReadStateRepo(f.db)}, NewUnreadService(convRepo, repository.NewMessageRepo(f.db), f.hub), f.hub)

	a := f.send(t, 1, &dto.SendMessageReq{CounterpartyID: 2, Text: "a"})
	b := f.send(t, 1, &dto.SendMessageReq{ConversationID: a.ConversationID, Text: "b"})

	res, err := reads.MarkRead(ctx, a.ConversationID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewlyReadCount)
	assert.True(t, res.ReadAt.Equal(b.CreatedAt))
	assert.True(t, f.participant(t, a.ConversationID, 2).LastReadAt.Equal(b.CreatedAt))

	// 水位已推进，再次标记不重复计数
	res, err = reads.MarkRead(ctx, a.ConversationID, 2, nil)
	require.NoError(t, err)
	assert.Zero(t, res.NewlyReadCount)
}
