package service

import (
	"Fitlink/internal/api/dto"
	"Fitlink/internal/model"
	"Fitlink/internal/pkg/consts"
	"Fitlink/internal/pkg/mongo"
	"Fitlink/internal/pkg/security"
	"Fitlink/internal/protocol"
	"Fitlink/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// ChatService 实时会话引擎接口定义
type ChatService interface {
	ListConversations(ctx context.Context, userID uint64) ([]dto.ConversationDTO, error)
	// GetHistory 返回按时间倒序（最新在前）的消息，反转为时间正序由客户端负责
	GetHistory(ctx context.Context, userID uint64, isStaff bool, convID uint64) ([]dto.MessageDTO, error)
	SendMessage(ctx context.Context, senderID uint64, isStaff bool, req *protocol.SendRequest) (*dto.MessageDTO, error)
	AddReaction(ctx context.Context, userID uint64, isStaff bool, req *protocol.AddReactionRequest) (*dto.MessageDTO, error)
	CreateConversation(ctx context.Context, userID, targetID uint64) (*dto.ConversationDTO, error)
	CreateSupport(ctx context.Context, userID uint64) (*dto.ConversationDTO, error)
	AssignSupport(ctx context.Context, staffID uint64, isStaff bool, convID, targetAdminID uint64) error
	ToggleLock(ctx context.Context, userID uint64, isStaff bool, convID uint64, locked bool) error
	ToggleHide(ctx context.Context, userID uint64, isStaff bool, convID uint64, hidden bool) error
	VerifyPassword(password string) bool
	GetSupportQueue(ctx context.Context, isStaff bool) ([]dto.ConversationDTO, error)
	MarkRead(ctx context.Context, userID uint64, isStaff bool, convID uint64) error
	// NotifySupportQueue 若存在待分配的支持会话，向坐席频道发出重拉信号
	NotifySupportQueue(ctx context.Context) error
}

type chatServiceImpl struct {
	convRepo        repository.ConversationRepo
	messageRepo     mongo.MessageRepo
	publisher       EventPublisher
	locker          DistLocker
	guardHash       string
	historyPageSize int

	convLocks sync.Map // convID -> *sync.Mutex
}

func NewChatService(convRepo repository.ConversationRepo, messageRepo mongo.MessageRepo, publisher EventPublisher, locker DistLocker, guardHash string, historyPageSize int) ChatService {
	if historyPageSize <= 0 {
		historyPageSize = 50
	}
	return &chatServiceImpl{
		convRepo:        convRepo,
		messageRepo:     messageRepo,
		publisher:       publisher,
		locker:          locker,
		guardHash:       guardHash,
		historyPageSize: historyPageSize,
	}
}

// lockConversation 同一会话的变更串行执行，返回解锁函数
func (s *chatServiceImpl) lockConversation(convID uint64) func() {
	v, _ := s.convLocks.LoadOrStore(convID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *chatServiceImpl) getConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// authorize 加载会话并完成授权检查单点
func (s *chatServiceImpl) authorize(ctx context.Context, convID, userID uint64, isStaff bool, action Action) (*model.Conversation, error) {
	conv, err := s.getConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if err := StateOf(conv).Authorize(action, isStaff, isMember); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations 获取会话列表
func (s *chatServiceImpl) ListConversations(ctx context.Context, userID uint64) ([]dto.ConversationDTO, error) {
	convs, err := s.convRepo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]dto.ConversationDTO, 0, len(convs))
	for _, conv := range convs {
		d, err := s.toConversationDTO(ctx, conv)
		if err != nil {
			return nil, err
		}
		res = append(res, *d)
	}
	return res, nil
}

func (s *chatServiceImpl) GetHistory(ctx context.Context, userID uint64, isStaff bool, convID uint64) ([]dto.MessageDTO, error) {
	if _, err := s.authorize(ctx, convID, userID, isStaff, ActionRead); err != nil {
		return nil, err
	}

	models, err := s.messageRepo.GetHistory(ctx, convID, s.historyPageSize)
	if err != nil {
		return nil, err
	}

	res := make([]dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, *toMessageDTO(m))
	}
	return res, nil
}

// SendMessage 发送消息：校验 -> 落库 -> 更新会话预览 -> 广播
func (s *chatServiceImpl) SendMessage(ctx context.Context, senderID uint64, isStaff bool, req *protocol.SendRequest) (*dto.MessageDTO, error) {
	conv, err := s.authorize(ctx, req.ConversationID, senderID, isStaff, ActionSend)
	if err != nil {
		return nil, err
	}

	// 回复消息必须位于同一会话
	if req.ReplyToID != "" {
		if _, err := s.messageRepo.GetMessage(ctx, req.ConversationID, req.ReplyToID); err != nil {
			return nil, ErrReplyNotFound
		}
	}

	unlock := s.lockConversation(req.ConversationID)
	defer unlock()

	msg := &mongo.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		MsgType:        req.MessageType,
		Content:        req.Content,
		Metadata:       req.Metadata,
		ReplyToID:      req.ReplyToID,
		ReadBy:         []uint64{senderID},
		CreatedAt:      time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.messageRepo.SaveMessage(writeCtx, msg); err != nil {
		return nil, err
	}

	err = s.convRepo.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.Content, int8(msg.MsgType), senderID, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	conv.LastMsgID = msg.ID
	conv.LastMsgContent = msg.Content
	conv.LastMsgType = int8(msg.MsgType)
	conv.LastSenderID = senderID
	conv.LastMessageAt = msg.CreatedAt

	mdto := toMessageDTO(msg)
	s.broadcastMessage(ctx, conv, mdto)
	s.broadcastConversation(ctx, conv, protocol.EvConversationUpdated, nil)
	s.signalQueueIfUnassigned(ctx, conv)

	return mdto, nil
}

// AddReaction 表态为幂等开关：同一用户对同一 emoji 重复表态即取消
func (s *chatServiceImpl) AddReaction(ctx context.Context, userID uint64, isStaff bool, req *protocol.AddReactionRequest) (*dto.MessageDTO, error) {
	conv, err := s.authorize(ctx, req.ConversationID, userID, isStaff, ActionReact)
	if err != nil {
		return nil, err
	}

	unlock := s.lockConversation(req.ConversationID)
	defer unlock()

	msg, err := s.messageRepo.GetMessage(ctx, req.ConversationID, req.MessageID)
	if err != nil {
		return nil, ErrMessageNotFound
	}

	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]uint64)
	}
	users := msg.Reactions[req.Emoji]
	removed := false
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		users = append(users, userID)
	}
	if len(users) == 0 {
		delete(msg.Reactions, req.Emoji)
	} else {
		msg.Reactions[req.Emoji] = users
	}

	if err := s.messageRepo.UpdateReactions(ctx, conv.ID, msg.ID, msg.Reactions); err != nil {
		return nil, err
	}

	// 变更以整条消息重播，客户端按 ID 原位替换
	mdto := toMessageDTO(msg)
	s.broadcastMessage(ctx, conv, mdto)
	s.signalQueueIfUnassigned(ctx, conv)

	return mdto, nil
}

// CreateConversation 创建私聊；同一对用户只存在一个会话
func (s *chatServiceImpl) CreateConversation(ctx context.Context, userID, targetID uint64) (*dto.ConversationDTO, error) {
	if targetID == 0 || targetID == userID {
		return nil, ErrTargetUserInvalid
	}

	peerKey := privatePeerKey(userID, targetID)

	conv, err := s.convRepo.GetConversationByPeerKey(ctx, peerKey)
	if err == nil {
		// 已存在：仅向发起者重播 created，对方列表无需变化
		d, err := s.toConversationDTO(ctx, conv)
		if err != nil {
			return nil, err
		}
		s.publishConversationEvent(ctx, protocol.EvConversationCreated, d, []uint64{userID})
		return d, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	newConv := &model.Conversation{
		Type:          consts.ConversationTypePrivate,
		PeerKey:       peerKey,
		LastMessageAt: time.Now(),
	}
	members := []*model.ConversationMember{
		{UserID: userID},
		{UserID: targetID},
	}
	if err := s.convRepo.CreateConversation(ctx, newConv, members); err != nil {
		return nil, err
	}

	d, err := s.toConversationDTO(ctx, newConv)
	if err != nil {
		return nil, err
	}
	s.publishConversationEvent(ctx, protocol.EvConversationCreated, d, []uint64{userID})
	s.publishConversationEvent(ctx, protocol.EvConversationAdded, d, []uint64{targetID})
	return d, nil
}

// CreateSupport 创建支持会话；不去重，同一用户可开多个支持工单
func (s *chatServiceImpl) CreateSupport(ctx context.Context, userID uint64) (*dto.ConversationDTO, error) {
	newConv := &model.Conversation{
		Type:          consts.ConversationTypeSupport,
		PeerKey:       "support_" + uuid.NewString(),
		LastMessageAt: time.Now(),
	}
	members := []*model.ConversationMember{{UserID: userID}}
	if err := s.convRepo.CreateConversation(ctx, newConv, members); err != nil {
		return nil, err
	}

	d, err := s.toConversationDTO(ctx, newConv)
	if err != nil {
		return nil, err
	}
	s.publishConversationEvent(ctx, protocol.EvConversationCreated, d, []uint64{userID})
	s.publishStaff(ctx, &protocol.SupportQueueUpdate{Head: protocol.Head{Type: protocol.EvSupportQueueUpdate}})
	return d, nil
}

// AssignSupport 分配支持会话；targetAdminID 为空时自领。分配只换绑不回退
func (s *chatServiceImpl) AssignSupport(ctx context.Context, staffID uint64, isStaff bool, convID, targetAdminID uint64) error {
	conv, err := s.getConversation(ctx, convID)
	if err != nil {
		return err
	}
	if err := StateOf(conv).Authorize(ActionAssign, isStaff, false); err != nil {
		return err
	}

	adminID := targetAdminID
	if adminID == 0 {
		adminID = staffID
	}

	// 跨实例互斥，避免两个坐席同时认领
	lockKey := consts.SupportAssignLock + strconv.FormatUint(convID, 10)
	ok, err := s.locker.TryLock(ctx, lockKey, staffID, 5*time.Second, 1)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssignConflict
	}
	defer s.locker.Unlock(ctx, lockKey, staffID)

	unlock := s.lockConversation(convID)
	defer unlock()

	if err := s.convRepo.AssignAdmin(ctx, convID, conv.AssignedAdminID, adminID); err != nil {
		return err
	}
	conv.AssignedAdminID = adminID

	s.broadcastConversation(ctx, conv, protocol.EvSupportAssigned, nil)
	s.publishStaff(ctx, &protocol.SupportQueueUpdate{Head: protocol.Head{Type: protocol.EvSupportQueueUpdate}})
	return nil
}

func (s *chatServiceImpl) ToggleLock(ctx context.Context, userID uint64, isStaff bool, convID uint64, locked bool) error {
	conv, err := s.authorize(ctx, convID, userID, isStaff, ActionToggle)
	if err != nil {
		return err
	}
	if err := s.convRepo.SetLocked(ctx, convID, locked); err != nil {
		return err
	}
	conv.IsLocked = locked
	s.broadcastConversation(ctx, conv, protocol.EvConversationUpdated, nil)
	return nil
}

func (s *chatServiceImpl) ToggleHide(ctx context.Context, userID uint64, isStaff bool, convID uint64, hidden bool) error {
	conv, err := s.authorize(ctx, convID, userID, isStaff, ActionToggle)
	if err != nil {
		return err
	}
	if err := s.convRepo.SetHidden(ctx, convID, hidden); err != nil {
		return err
	}
	conv.IsHidden = hidden
	s.broadcastConversation(ctx, conv, protocol.EvConversationUpdated, nil)
	return nil
}

// VerifyPassword 受保护会话的口令校验，不改变任何会话状态
func (s *chatServiceImpl) VerifyPassword(password string) bool {
	if s.guardHash == "" || password == "" {
		return false
	}
	return security.CheckPasswordHash(password, s.guardHash) == nil
}

func (s *chatServiceImpl) GetSupportQueue(ctx context.Context, isStaff bool) ([]dto.ConversationDTO, error) {
	if !isStaff {
		return nil, UnauthorizedError
	}

	convs, err := s.convRepo.ListUnassignedSupport(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]dto.ConversationDTO, 0, len(convs))
	for _, conv := range convs {
		d, err := s.toConversationDTO(ctx, conv)
		if err != nil {
			return nil, err
		}
		res = append(res, *d)
	}
	return res, nil
}

// MarkRead 标记已读：read_by 只增不减，最近一条消息整条重播
func (s *chatServiceImpl) MarkRead(ctx context.Context, userID uint64, isStaff bool, convID uint64) error {
	conv, err := s.authorize(ctx, convID, userID, isStaff, ActionRead)
	if err != nil {
		return err
	}

	if err := s.messageRepo.MarkRead(ctx, convID, userID); err != nil {
		return err
	}

	last, err := s.messageRepo.GetLastMessage(ctx, convID)
	if err != nil {
		return nil
	}
	s.broadcastMessage(ctx, conv, toMessageDTO(last))
	return nil
}

func (s *chatServiceImpl) NotifySupportQueue(ctx context.Context) error {
	count, err := s.convRepo.CountUnassignedSupport(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	s.publishStaff(ctx, &protocol.SupportQueueUpdate{Head: protocol.Head{Type: protocol.EvSupportQueueUpdate}})
	return nil
}

// ---- 广播 ----
// 广播失败只记录日志，绝不回滚已落库的变更

func (s *chatServiceImpl) broadcastMessage(ctx context.Context, conv *model.Conversation, m *dto.MessageDTO) {
	event := &protocol.MessageEvent{
		Head:    protocol.Head{Type: protocol.EvMessage},
		Message: *m,
	}
	s.publishToMembers(ctx, conv.ID, event)
}

func (s *chatServiceImpl) broadcastConversation(ctx context.Context, conv *model.Conversation, eventType string, extraUserIDs []uint64) {
	d, err := s.toConversationDTO(ctx, conv)
	if err != nil {
		log.Error("Failed to build conversation event", "convID", conv.ID, "err", err)
		return
	}
	memberIDs, err := s.convRepo.GetMemberIDs(ctx, conv.ID)
	if err != nil {
		log.Error("Failed to resolve broadcast targets", "convID", conv.ID, "err", err)
		return
	}
	s.publishConversationEvent(ctx, eventType, d, append(memberIDs, extraUserIDs...))
}

func (s *chatServiceImpl) publishConversationEvent(ctx context.Context, eventType string, d *dto.ConversationDTO, userIDs []uint64) {
	event := &protocol.ConversationEvent{
		Head:         protocol.Head{Type: eventType},
		Conversation: *d,
	}
	s.publishToUsers(ctx, userIDs, event)
}

func (s *chatServiceImpl) publishToMembers(ctx context.Context, convID uint64, event interface{}) {
	memberIDs, err := s.convRepo.GetMemberIDs(ctx, convID)
	if err != nil {
		log.Error("Failed to resolve broadcast targets", "convID", convID, "err", err)
		return
	}
	s.publishToUsers(ctx, memberIDs, event)
}

func (s *chatServiceImpl) publishToUsers(ctx context.Context, userIDs []uint64, event interface{}) {
	data, err := protocol.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal event", "err", err)
		return
	}
	seen := make(map[uint64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		channel := consts.ChatUserChannel + strconv.FormatUint(id, 10)
		if err := s.publisher.Publish(ctx, channel, data); err != nil {
			log.Error("Failed to publish event", "channel", channel, "err", err)
		}
	}
}

func (s *chatServiceImpl) publishStaff(ctx context.Context, event interface{}) {
	data, err := protocol.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal event", "err", err)
		return
	}
	if err := s.publisher.Publish(ctx, consts.ChatStaffQueueChannel, data); err != nil {
		log.Error("Failed to publish staff event", "err", err)
	}
}

// signalQueueIfUnassigned 未分配的支持会话有新动态时提示坐席重拉队列
func (s *chatServiceImpl) signalQueueIfUnassigned(ctx context.Context, conv *model.Conversation) {
	if conv.Type != consts.ConversationTypeSupport || conv.AssignedAdminID != 0 {
		return
	}
	s.publishStaff(ctx, &protocol.SupportQueueUpdate{Head: protocol.Head{Type: protocol.EvSupportQueueUpdate}})
}

// ---- 映射 ----

func (s *chatServiceImpl) toConversationDTO(ctx context.Context, conv *model.Conversation) (*dto.ConversationDTO, error) {
	memberIDs, err := s.convRepo.GetMemberIDs(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	d := &dto.ConversationDTO{
		ID:              conv.ID,
		Type:            conv.Type,
		ParticipantIDs:  memberIDs,
		IsLocked:        conv.IsLocked,
		IsHidden:        conv.IsHidden,
		AssignedAdminID: conv.AssignedAdminID,
		UpdatedAt:       conv.LastMessageAt,
	}

	if conv.LastMsgID != "" {
		if msg, err := s.messageRepo.GetMessage(ctx, conv.ID, conv.LastMsgID); err == nil {
			d.LastMessage = toMessageDTO(msg)
		}
	}
	return d, nil
}

func toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	return d
}

func privatePeerKey(a, b uint64) string {
	if a < b {
		return fmt.Sprintf("%d_%d", a, b)
	}
	return fmt.Sprintf("%d_%d", b, a)
}
