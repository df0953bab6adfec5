package protocol

// AuthRequest 连接建立后的首条消息，携带登录令牌
type AuthRequest struct {
	Head
	Token string `json:"token" validate:"required"`
}

// GetMessagesRequest 拉取某会话的历史消息
type GetMessagesRequest struct {
	Head
	ConversationID uint64 `json:"conversationId" validate:"required"`
}

// SendRequest 发送消息
type SendRequest struct {
	Head
	ConversationID uint64                 `json:"conversationId" validate:"required"`
	Content        string                 `json:"content" validate:"required"`
	MessageType    int                    `json:"messageType" validate:"required,oneof=1 2 3"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	ReplyToID      string                 `json:"replyToId,omitempty"`
}

// AddReactionRequest 对消息添加/取消表态
type AddReactionRequest struct {
	Head
	ConversationID uint64 `json:"conversationId" validate:"required"`
	MessageID      string `json:"messageId" validate:"required"`
	Emoji          string `json:"emoji" validate:"required"`
}

// CreateConversationRequest 创建（或复用）与指定用户的私聊
type CreateConversationRequest struct {
	Head
	ParticipantID uint64 `json:"participantId" validate:"required"`
}

// ToggleLockRequest 锁定/解锁会话
type ToggleLockRequest struct {
	Head
	ConversationID uint64 `json:"conversationId" validate:"required"`
	Locked         bool   `json:"locked"`
}

// ToggleHideRequest 隐藏/恢复会话
type ToggleHideRequest struct {
	Head
	ConversationID uint64 `json:"conversationId" validate:"required"`
	Hidden         bool   `json:"hidden"`
}

// VerifyPasswordRequest 校验受保护会话口令；通过 RequestID 关联响应
type VerifyPasswordRequest struct {
	Head
	Password string `json:"password" validate:"required"`
}

// AssignSupportRequest 分配支持会话；TargetAdminID 为空时分配给请求者自己
type AssignSupportRequest struct {
	Head
	ConversationID uint64 `json:"conversationId" validate:"required"`
	TargetAdminID  uint64 `json:"targetAdminId,omitempty"`
}

// MarkReadRequest 将会话内消息标记为已读
type MarkReadRequest struct {
	Head
	ConversationID uint64 `json:"conversationId" validate:"required"`
}
