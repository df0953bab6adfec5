package chatclient

import (
	"Fitlink/internal/protocol"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 3 * time.Second

var ErrNotConnected = errors.New("chatclient: not connected")

// Config 连接参数
type Config struct {
	Endpoint       string        // Websocket 地址，如 "ws://localhost:8080/api/chat"
	Token          string        // 登录令牌，连接建立后以 auth 帧发送
	ReconnectDelay time.Duration // 重连间隔，固定值，默认 3s
}

// Client 实时会话客户端。连接断开后以固定间隔自动重连，
// 同一时刻至多存在一个重连定时器；断线期间的发送静默丢弃
type Client struct {
	cfg     Config
	store   *Store
	pending *pendingRequests

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	timer     *time.Timer
}

// Connect 建立连接并发送鉴权帧。首次拨号失败直接返回错误；
// 建立后的断线由客户端自动重连
func Connect(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Token == "" {
		return nil, errors.New("chatclient: endpoint and token are required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}

	c := &Client{
		cfg:     cfg,
		store:   NewStore(),
		pending: newPendingRequests(),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

// Store 客户端本地状态，跨重连存活
func (c *Client) Store() *Store {
	return c.store
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close 关闭连接并取消重连
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.pending.failAll()
}

func (c *Client) dial() error {
	conn, resp, err := websocket.DefaultDialer.Dial(c.cfg.Endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("chatclient: client closed")
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)

	// 首帧必须是 auth，其余操作在 auth_success 之前都会被服务端拒绝
	return c.send(&protocol.AuthRequest{
		Head:  protocol.Head{Type: protocol.OpAuth, RequestID: uuid.NewString()},
		Token: c.cfg.Token,
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onDisconnect(conn)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) onDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// 旧连接的读循环收尾，忽略
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	if !closed {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	_ = conn.Close()
	// 在途的请求/响应操作全部按失败处理
	c.pending.failAll()

	if !closed {
		log.Warn("chat connection lost, reconnecting", "delay", c.cfg.ReconnectDelay)
	}
}

// scheduleReconnectLocked 同一时刻至多一个定时器；调用方持有 c.mu
func (c *Client) scheduleReconnectLocked() {
	if c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.timer = nil
		if c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.dial(); err != nil {
			c.mu.Lock()
			if !c.closed {
				c.scheduleReconnectLocked()
			}
			c.mu.Unlock()
		}
	})
}

func (c *Client) handleFrame(data []byte) {
	head, err := protocol.DecodeHead(data)
	if err != nil {
		log.Warn("chatclient: dropping malformed frame", "err", err)
		return
	}

	switch head.Type {
	case protocol.EvAuthSuccess:
		var ev protocol.AuthSuccess
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.setIdentity(ev.UserID, ev.IsStaff)
		// 重连后历史需要重新拉取
		c.store.reset()
		_ = c.send(&protocol.Head{Type: protocol.OpGetConversations})
		if ev.IsStaff {
			_ = c.send(&protocol.Head{Type: protocol.OpGetSupportQueue})
		}

	case protocol.EvConversationsList:
		var ev protocol.ConversationsList
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.ApplyConversations(ev.Conversations)

	case protocol.EvConversationAdded:
		var ev protocol.ConversationEvent
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.ApplyConversationAdded(ev.Conversation)

	case protocol.EvConversationCreated:
		var ev protocol.ConversationEvent
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.ApplyConversationCreated(ev.Conversation)

	case protocol.EvConversationUpdated, protocol.EvSupportAssigned:
		var ev protocol.ConversationEvent
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.ApplyConversationUpdated(ev.Conversation)

	case protocol.EvSupportQueue:
		var ev protocol.SupportQueue
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.SetSupportQueue(ev.Conversations)

	case protocol.EvSupportQueueUpdate:
		// 队列变更信号：重新拉取
		if c.store.IsStaff() {
			_ = c.send(&protocol.Head{Type: protocol.OpGetSupportQueue})
		}

	case protocol.EvMessage:
		var ev protocol.MessageEvent
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.ApplyMessage(ev.Message)

	case protocol.EvHistory:
		var ev protocol.HistoryEvent
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.store.ApplyHistory(ev.ConversationID, ev.Messages)

	case protocol.EvPasswordVerified:
		var ev protocol.PasswordVerified
		if err := protocol.DecodePayload(data, &ev); err != nil {
			return
		}
		c.pending.resolve(head.RequestID, ev.OK)

	case protocol.EvError:
		if head.RequestID != "" {
			c.pending.resolve(head.RequestID, false)
		}
		var ev protocol.ErrorEvent
		_ = protocol.DecodePayload(data, &ev)
		log.Warn("chatclient: server error", "message", ev.Message)

	default:
		// 未知事件忽略，保证向后兼容
	}
}

// send 序列化并写入一帧；断线时返回 ErrNotConnected
func (c *Client) send(v interface{}) error {
	data, err := protocol.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ---- 操作 ----
// 除 VerifyPassword 外均为尽力而为：断线期间静默丢弃

func (c *Client) SendMessage(convID uint64, messageType int, content, replyToID string) {
	_ = c.send(&protocol.SendRequest{
		Head:           protocol.Head{Type: protocol.OpSend},
		ConversationID: convID,
		Content:        content,
		MessageType:    messageType,
		ReplyToID:      replyToID,
	})
}

func (c *Client) AddReaction(convID uint64, messageID, emoji string) {
	_ = c.send(&protocol.AddReactionRequest{
		Head:           protocol.Head{Type: protocol.OpAddReaction},
		ConversationID: convID,
		MessageID:      messageID,
		Emoji:          emoji,
	})
}

func (c *Client) CreateConversation(participantID uint64) {
	_ = c.send(&protocol.CreateConversationRequest{
		Head:          protocol.Head{Type: protocol.OpCreateConversation},
		ParticipantID: participantID,
	})
}

func (c *Client) CreateSupport() {
	_ = c.send(&protocol.Head{Type: protocol.OpCreateSupport})
}

func (c *Client) ToggleLock(convID uint64, locked bool) {
	_ = c.send(&protocol.ToggleLockRequest{
		Head:           protocol.Head{Type: protocol.OpToggleLock},
		ConversationID: convID,
		Locked:         locked,
	})
}

func (c *Client) ToggleHide(convID uint64, hidden bool) {
	_ = c.send(&protocol.ToggleHideRequest{
		Head:           protocol.Head{Type: protocol.OpToggleHide},
		ConversationID: convID,
		Hidden:         hidden,
	})
}

// AssignSupport targetAdminID 为 0 时自领
func (c *Client) AssignSupport(convID, targetAdminID uint64) {
	_ = c.send(&protocol.AssignSupportRequest{
		Head:           protocol.Head{Type: protocol.OpAssignSupport},
		ConversationID: convID,
		TargetAdminID:  targetAdminID,
	})
}

func (c *Client) MarkRead(convID uint64) {
	_ = c.send(&protocol.MarkReadRequest{
		Head:           protocol.Head{Type: protocol.OpMarkRead},
		ConversationID: convID,
	})
}

// OpenConversation 切换活跃会话，历史按需懒加载
func (c *Client) OpenConversation(convID uint64) {
	if c.store.SetActive(convID) {
		_ = c.send(&protocol.GetMessagesRequest{
			Head:           protocol.Head{Type: protocol.OpGetMessages},
			ConversationID: convID,
		})
	}
}

func (c *Client) RefreshConversations() {
	_ = c.send(&protocol.Head{Type: protocol.OpGetConversations})
}

func (c *Client) RefreshSupportQueue() {
	_ = c.send(&protocol.Head{Type: protocol.OpGetSupportQueue})
}

// VerifyPassword 请求/响应式操作：以 requestId 关联响应，
// 断线或超时按失败处理
func (c *Client) VerifyPassword(ctx context.Context, password string) (bool, error) {
	requestID := uuid.NewString()
	ch := c.pending.add(requestID)

	err := c.send(&protocol.VerifyPasswordRequest{
		Head:     protocol.Head{Type: protocol.OpVerifyPassword, RequestID: requestID},
		Password: password,
	})
	if err != nil {
		c.pending.remove(requestID)
		return false, err
	}

	select {
	case ok := <-ch:
		return ok, nil
	case <-ctx.Done():
		c.pending.remove(requestID)
		return false, ctx.Err()
	}
}
