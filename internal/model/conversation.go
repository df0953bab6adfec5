package model

import "time"

// Conversation 会话主表
// 私聊通过 PeerKey (minId_maxId) 唯一索引去重；支持会话使用 support_<uuid>
type Conversation struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type            int8      `gorm:"not null;default:1" json:"type"` // 1-私聊, 2-支持会话
	PeerKey         string    `gorm:"uniqueIndex;type:varchar(64)" json:"peerKey"`
	IsLocked        bool      `gorm:"not null;default:false" json:"isLocked"`
	IsHidden        bool      `gorm:"not null;default:false" json:"isHidden"`
	AssignedAdminID uint64    `gorm:"not null;default:0;index" json:"assignedAdminId"` // 0 表示未分配
	LastMsgID       string    `gorm:"type:varchar(64)" json:"lastMsgId"`               // MongoDB 消息 ID
	LastMsgContent  string    `gorm:"type:varchar(255)" json:"lastMsgContent"`
	LastMsgType     int8      `gorm:"not null;default:1" json:"lastMsgType"`
	LastSenderID    uint64    `gorm:"not null;default:0" json:"lastSenderId"`
	LastMessageAt   time.Time `gorm:"index" json:"lastMessageAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表
type ConversationMember struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64    `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID         uint64    `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	JoinedAt       time.Time `json:"joinedAt"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
