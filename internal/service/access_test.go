package service

import (
	"errors"
	"testing"
)

func TestAuthorizeMatrix(t *testing.T) {
	cases := []struct {
		name    string
		state   AccessState
		action  Action
		isStaff bool
		member  bool
		want    error
	}{
		{"成员可发送", AccessState{}, ActionSend, false, true, nil},
		{"非成员不可发送", AccessState{}, ActionSend, false, false, ErrNotMember},
		{"锁定拦截普通用户发送", AccessState{Lock: Locked}, ActionSend, false, true, ErrConversationLocked},
		{"锁定不拦截坐席", AccessState{Lock: Locked, Support: true}, ActionSend, true, false, nil},
		{"锁定不拦截读取", AccessState{Lock: Locked}, ActionRead, false, true, nil},
		{"锁定不拦截表态", AccessState{Lock: Locked}, ActionReact, false, true, nil},
		{"隐藏不影响授权", AccessState{Visibility: Hidden}, ActionSend, false, true, nil},
		{"坐席可进入支持会话", AccessState{Support: true}, ActionRead, true, false, nil},
		{"坐席不可进入私聊", AccessState{}, ActionRead, true, false, ErrNotMember},
		{"坐席分配支持会话", AccessState{Support: true}, ActionAssign, true, false, nil},
		{"普通用户不可分配", AccessState{Support: true}, ActionAssign, false, true, UnauthorizedError},
		{"私聊不可分配", AccessState{}, ActionAssign, true, true, ErrNotSupport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Authorize(tc.action, tc.isStaff, tc.member)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}
