package consts

const (
	DefaultAvatarURL = "default_avatar.png"
)

// 推送给长连接的事件类型
const (
	EventMessageNew          = "message.new"
	EventMessageRead         = "message.read"
	EventMessageDeleted      = "message.deleted"
	EventUnreadUpdate        = "unread.update"
	EventConversationJoined  = "conversation.joined"
	EventConversationState   = "conversation.state"
	EventConversationDeleted = "conversation.deleted"
	EventError               = "error"
)

const (
	ReplyPreviewLength = 50
	DeletedPreviewText = "[消息已删除]"
)
