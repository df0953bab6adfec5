package service

import (
	"Fitlink/internal/model"
	"Fitlink/internal/pkg/consts"
)

// LockMode 会话锁定状态
type LockMode int8

const (
	Open LockMode = iota
	Locked
)

// Visibility 会话可见性，与锁定状态相互独立
type Visibility int8

const (
	Visible Visibility = iota
	Hidden
)

// Assignment 支持会话的坐席分配；一经分配只能换绑，不会回到未分配
type Assignment struct {
	AdminID uint64
}

func (a Assignment) Assigned() bool { return a.AdminID != 0 }

// AccessState 会话访问状态，所有操作的授权检查都经由 Authorize 单点完成
type AccessState struct {
	Lock       LockMode
	Visibility Visibility
	Support    bool
	Assignment Assignment
}

// StateOf 从存储模型提取访问状态
func StateOf(conv *model.Conversation) AccessState {
	s := AccessState{
		Support:    conv.Type == consts.ConversationTypeSupport,
		Assignment: Assignment{AdminID: conv.AssignedAdminID},
	}
	if conv.IsLocked {
		s.Lock = Locked
	}
	if conv.IsHidden {
		s.Visibility = Hidden
	}
	return s
}

// Action 受授权约束的操作类别
type Action int8

const (
	ActionSend Action = iota
	ActionReact
	ActionRead
	ActionToggle
	ActionAssign
)

// Authorize 授权检查单点。成员身份是基本门槛；支持会话对坐席放开；
// 锁定仅拦截普通用户的发送
func (s AccessState) Authorize(action Action, isStaff, isMember bool) error {
	if action == ActionAssign {
		if !s.Support {
			return ErrNotSupport
		}
		if !isStaff {
			return UnauthorizedError
		}
		return nil
	}

	participant := isMember || (s.Support && isStaff)
	if !participant {
		return ErrNotMember
	}

	if action == ActionSend && s.Lock == Locked && !isStaff {
		return ErrConversationLocked
	}

	return nil
}
