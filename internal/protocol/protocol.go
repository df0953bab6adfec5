// Package protocol 定义实时会话层的线上格式：每帧一个 UTF-8 JSON 对象，
// 以 type 字段区分操作；未知类型忽略，坏帧丢弃，均不中断连接。
package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// 客户端 -> 服务端
const (
	OpAuth               = "auth"
	OpGetConversations   = "get_conversations"
	OpGetMessages        = "get_messages"
	OpSend               = "send"
	OpAddReaction        = "add_reaction"
	OpCreateConversation = "create_conversation"
	OpCreateSupport      = "create_support"
	OpToggleLock         = "toggle_lock"
	OpToggleHide         = "toggle_hide"
	OpVerifyPassword     = "verify_password"
	OpGetSupportQueue    = "get_support_queue"
	OpAssignSupport      = "assign_support"
	OpMarkRead           = "mark_read"
)

// 服务端 -> 客户端
const (
	EvAuthSuccess         = "auth_success"
	EvConversationsList   = "conversations_list"
	EvConversationAdded   = "conversation_added"
	EvConversationCreated = "conversation_created"
	EvConversationUpdated = "conversation_updated"
	EvSupportQueue        = "support_queue"
	EvSupportQueueUpdate  = "support_queue_update"
	EvSupportAssigned     = "support_assigned"
	EvMessage             = "message"
	EvHistory             = "history"
	EvPasswordVerified    = "password_verified"
	EvError               = "error"
)

// Head 每帧公共头；RequestID 仅用于请求/响应式操作的关联
type Head struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

var validate = validator.New()

// DecodeHead 只解出判别字段，载荷由调用方按类型二次解码
func DecodeHead(data []byte) (Head, error) {
	var h Head
	if err := json.Unmarshal(data, &h); err != nil {
		return Head{}, fmt.Errorf("malformed frame: %w", err)
	}
	if h.Type == "" {
		return Head{}, fmt.Errorf("frame missing type field")
	}
	return h, nil
}

// DecodePayload 解码并校验某一类型的完整载荷
func DecodePayload(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// Marshal 编码一帧
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
