package dto

import "time"

// MessageDTO 消息明细，新消息与变更重播（表态/已读）共用同一结构
type MessageDTO struct {
	ID             string                 `json:"id"`
	ConversationID uint64                 `json:"conversationId"`
	SenderID       uint64                 `json:"senderId"`
	MsgType        int                    `json:"messageType"` // 1-文本, 2-图片, 3-组件卡片
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	ReplyToID      string                 `json:"replyToId,omitempty"`
	Reactions      map[string][]uint64    `json:"reactions,omitempty"`
	ReadBy         []uint64               `json:"readBy,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// ConversationDTO 会话列表项
type ConversationDTO struct {
	ID              uint64      `json:"id"`
	Type            int8        `json:"type"`
	ParticipantIDs  []uint64    `json:"participantIds"`
	IsLocked        bool        `json:"isLocked"`
	IsHidden        bool        `json:"isHidden"`
	AssignedAdminID uint64      `json:"assignedAdminId,omitempty"`
	LastMessage     *MessageDTO `json:"lastMessage,omitempty"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Response HTTP 接口统一返回体
type Response struct {
	Code    int         `json:"Code"`
	Message string      `json:"Message"`
	Data    interface{} `json:"Data"`
}
