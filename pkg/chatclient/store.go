// Package chatclient 提供实时会话层的 Go 客户端：
// 建立 Websocket 连接、完成鉴权握手、断线重连，并将服务端事件
// 投影为本地会话/消息状态。
package chatclient

import (
	"Fitlink/internal/api/dto"
	"sort"
	"sync"
)

// Store 客户端本地状态。服务端事件是唯一的写入来源，
// 消息列表按时间正序存放（线上历史为倒序，写入时反转）
type Store struct {
	mu sync.RWMutex

	selfID  uint64
	isStaff bool

	conversations []dto.ConversationDTO          // 按 UpdatedAt 倒序
	messages      map[uint64][]dto.MessageDTO    // convID -> 按时间正序
	loaded        map[uint64]bool                // 已拉取过历史的会话
	activeConvID  uint64
	supportQueue  []dto.ConversationDTO
}

func NewStore() *Store {
	return &Store{
		messages: make(map[uint64][]dto.MessageDTO),
		loaded:   make(map[uint64]bool),
	}
}

func (s *Store) setIdentity(userID uint64, isStaff bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = userID
	s.isStaff = isStaff
}

// SelfID 当前登录用户 ID，鉴权完成前为 0
func (s *Store) SelfID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

func (s *Store) IsStaff() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isStaff
}

// ApplyConversations 全量替换会话列表
func (s *Store) ApplyConversations(convs []dto.ConversationDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append([]dto.ConversationDTO(nil), convs...)
	s.sortConversations()
}

// ApplyConversationAdded 新会话插入；已存在则忽略
func (s *Store) ApplyConversationAdded(conv dto.ConversationDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ID == conv.ID {
			return
		}
	}
	s.conversations = append(s.conversations, conv)
	s.sortConversations()
}

// ApplyConversationCreated 本端发起创建的结果：插入（或已存在则保留），
// 未锁定时切换为活跃会话
func (s *Store) ApplyConversationCreated(conv dto.ConversationDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, c := range s.conversations {
		if c.ID == conv.ID {
			found = true
			break
		}
	}
	if !found {
		s.conversations = append(s.conversations, conv)
		s.sortConversations()
	}
	if !conv.IsLocked {
		s.activeConvID = conv.ID
	}
}

// ApplyConversationUpdated 覆盖更新并重排；本地没有的会话按新增处理
func (s *Store) ApplyConversationUpdated(conv dto.ConversationDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conversations {
		if c.ID == conv.ID {
			s.conversations[i] = conv
			s.sortConversations()
			return
		}
	}
	s.conversations = append(s.conversations, conv)
	s.sortConversations()
}

// ApplyMessage 消息事件投影：同 ID 原位替换（表态/已读变更的整条重播），
// 否则追加；随后无条件刷新所属会话的 lastMessage 与排序时间
func (s *Store) ApplyMessage(msg dto.MessageDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[msg.ConversationID]
	replaced := false
	for i, m := range list {
		if m.ID == msg.ID {
			list[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, msg)
	}
	s.messages[msg.ConversationID] = list

	for i, c := range s.conversations {
		if c.ID == msg.ConversationID {
			m := msg
			s.conversations[i].LastMessage = &m
			if msg.CreatedAt.After(c.UpdatedAt) {
				s.conversations[i].UpdatedAt = msg.CreatedAt
			}
			break
		}
	}
	s.sortConversations()
}

// ApplyHistory 历史为线上倒序，反转为时间正序后整体替换
func (s *Store) ApplyHistory(convID uint64, newestFirst []dto.MessageDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]dto.MessageDTO, len(newestFirst))
	for i, m := range newestFirst {
		list[len(newestFirst)-1-i] = m
	}
	s.messages[convID] = list
	s.loaded[convID] = true
}

func (s *Store) SetSupportQueue(convs []dto.ConversationDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supportQueue = append([]dto.ConversationDTO(nil), convs...)
}

func (s *Store) SupportQueue() []dto.ConversationDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]dto.ConversationDTO(nil), s.supportQueue...)
}

func (s *Store) Conversations() []dto.ConversationDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]dto.ConversationDTO(nil), s.conversations...)
}

// Messages 某会话的本地消息，时间正序
func (s *Store) Messages(convID uint64) []dto.MessageDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]dto.MessageDTO(nil), s.messages[convID]...)
}

// SetActive 切换活跃会话；返回 true 表示尚未拉取过历史，调用方需要发起 get_messages
func (s *Store) SetActive(convID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeConvID = convID
	return !s.loaded[convID]
}

func (s *Store) ActiveConversation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeConvID
}

// UnreadCount 存在他人发送且自己未读的 lastMessage 的会话数量
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.conversations {
		last := c.LastMessage
		if last == nil || last.SenderID == s.selfID {
			continue
		}
		read := false
		for _, id := range last.ReadBy {
			if id == s.selfID {
				read = true
				break
			}
		}
		if !read {
			count++
		}
	}
	return count
}

// reset 断线重连后由全量列表重建，历史需要重新拉取
func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[uint64][]dto.MessageDTO)
	s.loaded = make(map[uint64]bool)
}

func (s *Store) sortConversations() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})
}
