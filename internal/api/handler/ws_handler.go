package handler

import (
	"Fitlink/internal/service"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	chatService service.ChatService
}

func NewWsHandler(chatService service.ChatService) *WsHandler {
	return &WsHandler{chatService: chatService}
}

// Connect 升级 Websocket 连接。鉴权不在 URL 上携带令牌，
// 而是由连接内的首条 auth 帧完成
func (s *WsHandler) Connect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	session := newWsSession(conn, s.chatService)
	session.run()
}
