package mongo

import (
	"Homestead/internal/api/dto"
	"Homestead/internal/pkg/consts"
	"context"
	"unicode/utf8"
)

// InboxNotifier 把新消息写入接收者的站内信
type InboxNotifier struct {
	repo InboxRepo
}

func NewInboxNotifier(repo InboxRepo) *InboxNotifier {
	return &InboxNotifier{repo: repo}
}

func (n *InboxNotifier) OnMessageSent(ctx context.Context, msg *dto.MessageDTO, recipientIDs []uint64) error {
	list := make([]*InboxModel, 0, len(recipientIDs))
	for _, uid := range recipientIDs {
		list = append(list, &InboxModel{
			ReceiverID:     uid,
			SenderID:       msg.AuthorID,
			Type:           InboxTypeMessage,
			TargetID:       msg.ID,
			ConversationID: msg.ConversationID,
			Content:        preview(msg.Text),
			CreatedAt:      msg.CreatedAt,
		})
	}
	return n.repo.CreateNotifications(ctx, list)
}

// OnConversationRead 会话已读时同步站内信状态
func (n *InboxNotifier) OnConversationRead(ctx context.Context, userID, convID uint64) error {
	return n.repo.MarkConversationRead(ctx, userID, convID)
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= consts.ReplyPreviewLength {
		return s
	}
	return string([]rune(s)[:consts.ReplyPreviewLength])
}
