package job

import (
	"Fitlink/internal/pkg/logger"
	"Fitlink/internal/service"
	"context"
	log "log/slog"

	"github.com/google/uuid"
)

// SupportReminderJob 周期性检查支持队列，有未分配会话时提醒在线坐席
type SupportReminderJob struct {
	chatService service.ChatService
}

func NewSupportReminderJob(chatService service.ChatService) *SupportReminderJob {
	return &SupportReminderJob{
		chatService: chatService,
	}
}

func (s *SupportReminderJob) Run() {
	traceID := "job-support-reminder-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	if err := s.chatService.NotifySupportQueue(ctx); err != nil {
		log.ErrorContext(ctx, "support reminder notify error", "err", err)
	}
}
