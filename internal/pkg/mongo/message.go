package mongo

import (
	"time"
)

// Message MongoDB 消息明细模型
// 消息本体不可变；reactions 与 read_by 只增不减，变更后整条重新广播
type Message struct {
	ID             string                 `bson:"_id" json:"id"`
	ConversationID uint64                 `bson:"conversation_id" json:"conversationId"` // 关联 MySQL 的会话 ID
	SenderID       uint64                 `bson:"sender_id" json:"senderId"`
	MsgType        int                    `bson:"msg_type" json:"messageType"` // 1-文本, 2-图片, 3-组件卡片
	Content        string                 `bson:"content" json:"content"`
	Metadata       map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	ReplyToID      string                 `bson:"reply_to_id,omitempty" json:"replyToId,omitempty"` // 同会话内被回复消息的 ID
	Reactions      map[string][]uint64    `bson:"reactions,omitempty" json:"reactions"`             // emoji -> 用户 ID 集合
	ReadBy         []uint64               `bson:"read_by,omitempty" json:"readBy"`                  // 已读用户 ID 集合
	CreatedAt      time.Time              `bson:"created_at" json:"createdAt"`
}

// HasRead 用户是否已读该消息
func (m *Message) HasRead(userID uint64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
