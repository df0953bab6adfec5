package wire

import (
	"Fitlink/internal/api"
	"Fitlink/internal/api/config"
	"Fitlink/internal/api/handler"
	"Fitlink/internal/job"
	"Fitlink/internal/pkg/cron"
	"Fitlink/internal/pkg/mongo"
	"Fitlink/internal/repository"
	"Fitlink/internal/service"

	"github.com/gin-gonic/gin"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router  *gin.Engine
	DB      *gorm.DB
	CronMgr *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongodrv.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	messageRepo := mongo.NewMessageRepo(mongoDB)

	chatService := service.NewChatService(
		convRepo,
		messageRepo,
		service.NewRedisEventPublisher(),
		service.NewRedisDistLocker(),
		cfg.Chat.GuardPasswordHash,
		cfg.Chat.HistoryPageSize,
	)

	handlers := &api.HandlersGroup{
		WsHandler: handler.NewWsHandler(chatService),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewSupportReminderJob(chatService))

	return &ApplicationContainer{
		Router:  router,
		DB:      db,
		CronMgr: cronMgr,
	}, nil
}
