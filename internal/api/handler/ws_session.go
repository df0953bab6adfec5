package handler

import (
	"Fitlink/internal/pkg/consts"
	"Fitlink/internal/pkg/logger"
	"Fitlink/internal/pkg/redis"
	"Fitlink/internal/pkg/security"
	"Fitlink/internal/protocol"
	"Fitlink/internal/service"
	"context"
	log "log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsOutBufferSize = 256
)

// wsSession 单条 Websocket 连接的会话状态。
// 读循环逐帧处理到完成；所有下行写集中在唯一的写循环
type wsSession struct {
	conn *websocket.Conn
	svc  service.ChatService

	claims *security.UserClaims
	ctx    context.Context

	out  chan []byte
	stop chan struct{}
	once sync.Once
}

func newWsSession(conn *websocket.Conn, svc service.ChatService) *wsSession {
	traceID := "ws-" + uuid.NewString()
	return &wsSession{
		conn: conn,
		svc:  svc,
		ctx:  context.WithValue(context.Background(), logger.TraceIDKey, traceID),
		out:  make(chan []byte, wsOutBufferSize),
		stop: make(chan struct{}),
	}
}

func (s *wsSession) run() {
	go s.writePump()
	s.readPump()
}

func (s *wsSession) shutdown() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
}

// readPump 读循环：坏帧与未知类型仅记录并忽略，不中断连接
func (s *wsSession) readPump() {
	defer s.shutdown()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.claims != nil {
				log.InfoContext(s.ctx, "用户 WS 连接已断开", "userID", s.claims.UserID)
			}
			return
		}

		head, err := protocol.DecodeHead(data)
		if err != nil {
			log.WarnContext(s.ctx, "丢弃坏帧", "err", err)
			continue
		}

		s.dispatch(head, data)
	}
}

// writePump 唯一的连接写入点
func (s *wsSession) writePump() {
	for {
		select {
		case payload := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.shutdown()
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *wsSession) dispatch(head protocol.Head, data []byte) {
	if head.Type == protocol.OpAuth {
		s.handleAuth(head, data)
		return
	}

	// 鉴权前只接受 auth 帧
	if s.claims == nil {
		s.sendError(head.RequestID, service.ErrUnauthenticated)
		return
	}

	userID := s.claims.UserID
	isStaff := s.claims.IsStaff()

	switch head.Type {
	case protocol.OpGetConversations:
		list, err := s.svc.ListConversations(s.ctx, userID)
		if err != nil {
			s.sendError(head.RequestID, err)
			return
		}
		s.sendEvent(&protocol.ConversationsList{
			Head:          protocol.Head{Type: protocol.EvConversationsList, RequestID: head.RequestID},
			Conversations: list,
		})

	case protocol.OpGetMessages:
		var req protocol.GetMessagesRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		messages, err := s.svc.GetHistory(s.ctx, userID, isStaff, req.ConversationID)
		if err != nil {
			s.sendError(head.RequestID, err)
			return
		}
		s.sendEvent(&protocol.HistoryEvent{
			Head:           protocol.Head{Type: protocol.EvHistory, RequestID: head.RequestID},
			ConversationID: req.ConversationID,
			Messages:       messages,
		})

	case protocol.OpSend:
		var req protocol.SendRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		// 发送方经由自己的订阅频道收到消息，无需直接回执
		if _, err := s.svc.SendMessage(s.ctx, userID, isStaff, &req); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpAddReaction:
		var req protocol.AddReactionRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		if _, err := s.svc.AddReaction(s.ctx, userID, isStaff, &req); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpCreateConversation:
		var req protocol.CreateConversationRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		if _, err := s.svc.CreateConversation(s.ctx, userID, req.ParticipantID); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpCreateSupport:
		if _, err := s.svc.CreateSupport(s.ctx, userID); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpToggleLock:
		var req protocol.ToggleLockRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		if err := s.svc.ToggleLock(s.ctx, userID, isStaff, req.ConversationID, req.Locked); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpToggleHide:
		var req protocol.ToggleHideRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		if err := s.svc.ToggleHide(s.ctx, userID, isStaff, req.ConversationID, req.Hidden); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpVerifyPassword:
		var req protocol.VerifyPasswordRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		s.sendEvent(&protocol.PasswordVerified{
			Head: protocol.Head{Type: protocol.EvPasswordVerified, RequestID: head.RequestID},
			OK:   s.svc.VerifyPassword(req.Password),
		})

	case protocol.OpGetSupportQueue:
		queue, err := s.svc.GetSupportQueue(s.ctx, isStaff)
		if err != nil {
			s.sendError(head.RequestID, err)
			return
		}
		s.sendEvent(&protocol.SupportQueue{
			Head:          protocol.Head{Type: protocol.EvSupportQueue, RequestID: head.RequestID},
			Conversations: queue,
		})

	case protocol.OpAssignSupport:
		var req protocol.AssignSupportRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		if err := s.svc.AssignSupport(s.ctx, userID, isStaff, req.ConversationID, req.TargetAdminID); err != nil {
			s.sendError(head.RequestID, err)
		}

	case protocol.OpMarkRead:
		var req protocol.MarkReadRequest
		if !s.decode(data, &req, head.RequestID) {
			return
		}
		if err := s.svc.MarkRead(s.ctx, userID, isStaff, req.ConversationID); err != nil {
			s.sendError(head.RequestID, err)
		}

	default:
		log.WarnContext(s.ctx, "忽略未知帧类型", "type", head.Type)
	}
}

func (s *wsSession) handleAuth(head protocol.Head, data []byte) {
	if s.claims != nil {
		// 重复鉴权直接重放成功响应
		s.sendEvent(&protocol.AuthSuccess{
			Head:    protocol.Head{Type: protocol.EvAuthSuccess, RequestID: head.RequestID},
			UserID:  s.claims.UserID,
			IsStaff: s.claims.IsStaff(),
		})
		return
	}

	var req protocol.AuthRequest
	if !s.decode(data, &req, head.RequestID) {
		return
	}

	claims, err := security.ValidateToken(req.Token)
	if err != nil {
		log.WarnContext(s.ctx, "WS 鉴权失败", "err", err)
		s.sendError(head.RequestID, service.UnauthorizedError)
		return
	}
	s.claims = claims

	channels := []string{consts.ChatUserChannel + strconv.FormatUint(claims.UserID, 10)}
	if claims.IsStaff() {
		channels = append(channels, consts.ChatStaffQueueChannel)
	}
	pubsub := redis.Subscribe(s.ctx, channels...)
	go s.forwardPubSub(pubsub)

	log.InfoContext(s.ctx, "用户 WS 连接已建立", "userID", claims.UserID, "isStaff", claims.IsStaff())

	s.sendEvent(&protocol.AuthSuccess{
		Head:    protocol.Head{Type: protocol.EvAuthSuccess, RequestID: head.RequestID},
		UserID:  claims.UserID,
		IsStaff: claims.IsStaff(),
	})
}

// forwardPubSub 将 Redis 订阅消息桥接到写循环
func (s *wsSession) forwardPubSub(pubsub *goredis.PubSub) {
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.enqueue([]byte(msg.Payload))
		case <-s.stop:
			return
		}
	}
}

func (s *wsSession) enqueue(payload []byte) {
	select {
	case s.out <- payload:
	case <-s.stop:
	}
}

func (s *wsSession) sendEvent(v interface{}) {
	data, err := protocol.Marshal(v)
	if err != nil {
		log.ErrorContext(s.ctx, "编码下行帧失败", "err", err)
		return
	}
	s.enqueue(data)
}

func (s *wsSession) sendError(requestID string, err error) {
	s.sendEvent(&protocol.ErrorEvent{
		Head:    protocol.Head{Type: protocol.EvError, RequestID: requestID},
		Message: err.Error(),
	})
}

// decode 解码失败时回发 error 帧并返回 false
func (s *wsSession) decode(data []byte, v interface{}, requestID string) bool {
	if err := protocol.DecodePayload(data, v); err != nil {
		log.WarnContext(s.ctx, "非法载荷", "err", err)
		s.sendError(requestID, service.ErrParamInvalid)
		return false
	}
	return true
}
