package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
)

// 错误大类，具体错误通过 Unwrap 归属到其中之一
var (
	ErrNotFound   = errors.New("资源不存在")
	ErrForbidden  = errors.New("权限不足")
	ErrValidation = errors.New("参数错误")
	ErrConflict   = errors.New("并发冲突")
)

// IMError 带分类的业务错误
type IMError struct {
	kind error
	msg  string
}

func (e *IMError) Error() string { return e.msg }

func (e *IMError) Unwrap() error { return e.kind }

func newError(kind error, msg string) *IMError {
	return &IMError{kind: kind, msg: msg}
}

var (
	ErrParamInvalid           = newError(ErrValidation, "参数错误")
	ErrEmptyText              = newError(ErrValidation, "消息内容不能为空")
	ErrTextTooLong            = newError(ErrValidation, "消息内容过长")
	ErrConversationRef        = newError(ErrValidation, "会话 ID、对方用户 ID、社区 ID 必须且只能指定一个")
	ErrEmptyQuery             = newError(ErrValidation, "搜索关键词不能为空")
	ErrConversationNotFound   = newError(ErrNotFound, "会话不存在")
	ErrMessageNotFound        = newError(ErrNotFound, "消息不存在")
	ErrNotMember              = newError(ErrNotFound, "会话不存在或尚未加入")
	ErrSelfConversation       = newError(ErrForbidden, "不能给自己发消息")
	ErrNotParticipant         = newError(ErrForbidden, "不是该会话的成员")
	ErrNotCommunityMember     = newError(ErrForbidden, "不是该社区的成员")
	ErrCrossConversationReply = newError(ErrForbidden, "不能回复其他会话的消息")
	ErrChannelDisabled        = newError(ErrForbidden, "该群聊已被禁用")
	ErrNotModerator           = newError(ErrForbidden, "需要管理员权限")
	ErrDeleteForbidden        = newError(ErrForbidden, "只能删除自己的消息")
	ErrNotGroup               = newError(ErrValidation, "只有群聊支持该操作")
	UnauthorizedError         = errors.New("未登录或登录已过期")
	UnExpectedError           = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrValidation:     BadRequest,
	ErrForbidden:      Forbidden,
	ErrNotFound:       NotFound,
	ErrConflict:       Conflict,
	UnauthorizedError: Unauthorized,
	UnExpectedError:   InternalServerError,
}

// ErrorCode 按错误大类查找业务码，未知错误返回 false
func ErrorCode(err error) (int, bool) {
	for kind, code := range ErrorMap {
		if errors.Is(err, kind) {
			return code, true
		}
	}
	return InternalServerError, false
}
