package protocol

import "Fitlink/internal/api/dto"

// AuthSuccess 鉴权通过；IsStaff 指示客户端是否需要拉取支持队列
type AuthSuccess struct {
	Head
	UserID  uint64 `json:"userId"`
	IsStaff bool   `json:"isStaff"`
}

// ConversationsList 全量会话列表，客户端整体替换本地状态
type ConversationsList struct {
	Head
	Conversations []dto.ConversationDTO `json:"conversations"`
}

// ConversationEvent conversation_added / conversation_created /
// conversation_updated / support_assigned 共用载荷
type ConversationEvent struct {
	Head
	Conversation dto.ConversationDTO `json:"conversation"`
}

// SupportQueue 当前待分配的支持会话
type SupportQueue struct {
	Head
	Conversations []dto.ConversationDTO `json:"conversations"`
}

// SupportQueueUpdate 队列变更信号，收到后坐席重新拉取队列
type SupportQueueUpdate struct {
	Head
}

// MessageEvent 新消息与整条变更重播共用载荷
type MessageEvent struct {
	Head
	Message dto.MessageDTO `json:"message"`
}

// HistoryEvent 某会话的历史消息，按时间倒序（最新在前）
type HistoryEvent struct {
	Head
	ConversationID uint64           `json:"conversationId"`
	Messages       []dto.MessageDTO `json:"messages"`
}

// PasswordVerified verify_password 的关联响应
type PasswordVerified struct {
	Head
	OK bool `json:"ok"`
}

// ErrorEvent 业务/协议错误，不中断连接
type ErrorEvent struct {
	Head
	Message string `json:"message"`
}
