package consts

const (
	// ChatUserChannel 用户个人事件频道前缀，后接用户 ID
	ChatUserChannel = "chat:user:"
	// ChatStaffQueueChannel 客服坐席监听的支持队列频道
	ChatStaffQueueChannel = "chat:staff:queue"
)

const (
	// SupportAssignLock 支持会话分配锁前缀，后接会话 ID
	SupportAssignLock = "chat:support:assign:lock:"
)
