package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrUnauthenticated      = errors.New("未登录，请先完成鉴权")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrNotMember            = errors.New("不是该会话的成员")
	ErrConversationLocked   = errors.New("会话已锁定")
	ErrReplyNotFound        = errors.New("被回复的消息不在该会话中")
	ErrNotSupport           = errors.New("不是支持会话")
	ErrTargetUserInvalid    = errors.New("目标用户无效")
	ErrAssignConflict       = errors.New("该支持会话正在被分配，请稍后重试")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrUnauthenticated:      Unauthorized,
	ErrConversationNotFound: NotFound,
	ErrMessageNotFound:      NotFound,
	ErrNotMember:            Unauthorized,
	ErrConversationLocked:   Unauthorized,
	ErrReplyNotFound:        BadRequest,
	ErrNotSupport:           BadRequest,
	ErrTargetUserInvalid:    BadRequest,
	ErrAssignConflict:       Conflict,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
