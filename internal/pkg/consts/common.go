package consts

// 会话类型
const (
	ConversationTypePrivate int8 = 1
	ConversationTypeSupport int8 = 2
)

// 消息类型
const (
	MessageTypeText      = 1
	MessageTypeImage     = 2
	MessageTypeComponent = 3
)

// RoleStaff 客服/管理员角色名，持有该角色的用户可见支持队列
const RoleStaff = "ADMIN"
