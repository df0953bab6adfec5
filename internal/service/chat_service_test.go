package service

import (
	"Fitlink/internal/model"
	"Fitlink/internal/pkg/consts"
	"Fitlink/internal/pkg/mongo"
	"Fitlink/internal/pkg/security"
	"Fitlink/internal/protocol"
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

// ---- 内存假实现 ----

type fakeConvRepo struct {
	mu      sync.Mutex
	nextID  uint64
	convs   map[uint64]*model.Conversation
	members map[uint64][]uint64 // convID -> userIDs，按加入顺序
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		nextID:  1,
		convs:   make(map[uint64]*model.Conversation),
		members: make(map[uint64][]uint64),
	}
}

func (r *fakeConvRepo) CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv.ID = r.nextID
	r.nextID++
	conv.CreatedAt = time.Now()
	cp := *conv
	r.convs[conv.ID] = &cp
	for _, m := range members {
		r.members[conv.ID] = append(r.members[conv.ID], m.UserID)
	}
	return nil
}

func (r *fakeConvRepo) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *conv
	return &cp, nil
}

func (r *fakeConvRepo) GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		if conv.PeerKey == peerKey {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeConvRepo) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.members[convID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeConvRepo) GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, len(r.members[convID]))
	copy(ids, r.members[convID])
	return ids, nil
}

func (r *fakeConvRepo) GetUserConversations(ctx context.Context, userID uint64) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*model.Conversation
	for id, conv := range r.convs {
		for _, m := range r.members[id] {
			if m == userID {
				cp := *conv
				res = append(res, &cp)
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LastMessageAt.After(res[j].LastMessageAt)
	})
	return res, nil
}

func (r *fakeConvRepo) UpdateLastMessage(ctx context.Context, convID uint64, msgID, content string, msgType int8, senderID uint64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conv.LastMsgID = msgID
	conv.LastMsgContent = content
	conv.LastMsgType = msgType
	conv.LastSenderID = senderID
	conv.LastMessageAt = at
	return nil
}

func (r *fakeConvRepo) SetLocked(ctx context.Context, convID uint64, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[convID].IsLocked = locked
	return nil
}

func (r *fakeConvRepo) SetHidden(ctx context.Context, convID uint64, hidden bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[convID].IsHidden = hidden
	return nil
}

func (r *fakeConvRepo) AssignAdmin(ctx context.Context, convID uint64, prevAdminID, adminID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conv.AssignedAdminID = adminID
	if prevAdminID != 0 && prevAdminID != adminID {
		members := r.members[convID]
		for i, id := range members {
			if id == prevAdminID {
				r.members[convID] = append(members[:i], members[i+1:]...)
				break
			}
		}
	}
	for _, id := range r.members[convID] {
		if id == adminID {
			return nil
		}
	}
	r.members[convID] = append(r.members[convID], adminID)
	return nil
}

func (r *fakeConvRepo) ListUnassignedSupport(ctx context.Context) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*model.Conversation
	for _, conv := range r.convs {
		if conv.Type == consts.ConversationTypeSupport && conv.AssignedAdminID == 0 {
			cp := *conv
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *fakeConvRepo) CountUnassignedSupport(ctx context.Context) (int64, error) {
	convs, _ := r.ListUnassignedSupport(ctx)
	return int64(len(convs)), nil
}

type fakeMsgRepo struct {
	mu       sync.Mutex
	messages map[uint64][]*mongo.Message // convID -> 按写入顺序
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{messages: make(map[uint64][]*mongo.Message)}
}

func (r *fakeMsgRepo) SaveMessage(ctx context.Context, msg *mongo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], &cp)
	return nil
}

func (r *fakeMsgRepo) GetHistory(ctx context.Context, convID uint64, limit int) ([]*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[convID]
	var res []*mongo.Message
	for i := len(msgs) - 1; i >= 0 && len(res) < limit; i-- {
		cp := *msgs[i]
		res = append(res, &cp)
	}
	return res, nil
}

func (r *fakeMsgRepo) GetMessage(ctx context.Context, convID uint64, msgID string) (*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[convID] {
		if m.ID == msgID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *fakeMsgRepo) UpdateReactions(ctx context.Context, convID uint64, msgID string, reactions map[string][]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[convID] {
		if m.ID == msgID {
			m.Reactions = reactions
			return nil
		}
	}
	return errors.New("not found")
}

func (r *fakeMsgRepo) MarkRead(ctx context.Context, convID uint64, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[convID] {
		if m.SenderID != userID && !m.HasRead(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return nil
}

func (r *fakeMsgRepo) GetLastMessage(ctx context.Context, convID uint64) (*mongo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[convID]
	if len(msgs) == 0 {
		return nil, errors.New("not found")
	}
	cp := *msgs[len(msgs)-1]
	return &cp, nil
}

type publishedFrame struct {
	Channel string
	Type    string
}

type capturePublisher struct {
	mu     sync.Mutex
	frames []publishedFrame
}

func (p *capturePublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	head, err := protocol.DecodeHead(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, publishedFrame{Channel: channel, Type: head.Type})
	return nil
}

func (p *capturePublisher) all() []publishedFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedFrame(nil), p.frames...)
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func (p *capturePublisher) count(channel, eventType string) int {
	n := 0
	for _, f := range p.all() {
		if f.Channel == channel && f.Type == eventType {
			n++
		}
	}
	return n
}

type fakeLocker struct {
	denied bool
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retry int) (bool, error) {
	return !l.denied, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string, value interface{}) {}

// ---- 测试脚手架 ----

type testEnv struct {
	convRepo  *fakeConvRepo
	msgRepo   *fakeMsgRepo
	publisher *capturePublisher
	locker    *fakeLocker
	svc       ChatService
}

func newTestEnv(t *testing.T, guardHash string) *testEnv {
	t.Helper()
	env := &testEnv{
		convRepo:  newFakeConvRepo(),
		msgRepo:   newFakeMsgRepo(),
		publisher: &capturePublisher{},
		locker:    &fakeLocker{},
	}
	env.svc = NewChatService(env.convRepo, env.msgRepo, env.publisher, env.locker, guardHash, 50)
	return env
}

func (e *testEnv) addConversation(convType int8, memberIDs ...uint64) uint64 {
	conv := &model.Conversation{Type: convType, PeerKey: "k" + strconv.Itoa(len(e.convRepo.convs)), LastMessageAt: time.Now()}
	members := make([]*model.ConversationMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, &model.ConversationMember{UserID: id})
	}
	_ = e.convRepo.CreateConversation(context.Background(), conv, members)
	return conv.ID
}

func userChan(id uint64) string {
	return consts.ChatUserChannel + strconv.FormatUint(id, 10)
}

// ---- 私聊创建 ----

func TestCreateConversationDeduplicates(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	first, err := env.svc.CreateConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if env.publisher.count(userChan(1), protocol.EvConversationCreated) != 1 {
		t.Fatalf("creator should receive conversation_created")
	}
	if env.publisher.count(userChan(2), protocol.EvConversationAdded) != 1 {
		t.Fatalf("target should receive conversation_added")
	}

	env.publisher.reset()

	// 另一方反向发起，必须命中同一会话
	second, err := env.svc.CreateConversation(ctx, 2, 1)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same conversation, got %d and %d", first.ID, second.ID)
	}
	if len(env.convRepo.convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(env.convRepo.convs))
	}
	if env.publisher.count(userChan(1), protocol.EvConversationAdded) != 0 {
		t.Fatalf("replayed create must not notify the peer")
	}
	if env.publisher.count(userChan(2), protocol.EvConversationCreated) != 1 {
		t.Fatalf("replayed create should still answer the requester")
	}
}

func TestCreateConversationRejectsSelf(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.svc.CreateConversation(context.Background(), 7, 7); !errors.Is(err, ErrTargetUserInvalid) {
		t.Fatalf("expected ErrTargetUserInvalid, got %v", err)
	}
}

// ---- 发送 ----

func TestSendMessageBroadcastsAndUpdatesPreview(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	msg, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: convID,
		Content:        "第一条",
		MessageType:    consts.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("message should be assigned an id")
	}
	if len(msg.ReadBy) != 1 || msg.ReadBy[0] != 1 {
		t.Fatalf("sender should be the initial reader, got %v", msg.ReadBy)
	}

	conv, _ := env.convRepo.GetConversation(ctx, convID)
	if conv.LastMsgID != msg.ID || conv.LastMsgContent != "第一条" {
		t.Fatalf("conversation preview not updated: %+v", conv)
	}

	// 每个成员依次收到 message 与 conversation_updated
	for _, uid := range []uint64{1, 2} {
		if env.publisher.count(userChan(uid), protocol.EvMessage) != 1 {
			t.Fatalf("user %d missed message event", uid)
		}
		if env.publisher.count(userChan(uid), protocol.EvConversationUpdated) != 1 {
			t.Fatalf("user %d missed conversation_updated", uid)
		}
	}

	// message 必须先于 conversation_updated
	frames := env.publisher.all()
	firstMsg, firstUpd := -1, -1
	for i, f := range frames {
		if f.Type == protocol.EvMessage && firstMsg == -1 {
			firstMsg = i
		}
		if f.Type == protocol.EvConversationUpdated && firstUpd == -1 {
			firstUpd = i
		}
	}
	if firstMsg == -1 || firstUpd == -1 || firstMsg > firstUpd {
		t.Fatalf("message must precede conversation_updated: %v", frames)
	}
}

func TestSendMessageLockedConversation(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convID := env.addConversation(consts.ConversationTypeSupport, 1)
	_ = env.convRepo.SetLocked(ctx, convID, true)

	_, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: convID,
		Content:        "hello",
		MessageType:    consts.MessageTypeText,
	})
	if !errors.Is(err, ErrConversationLocked) {
		t.Fatalf("expected ErrConversationLocked, got %v", err)
	}
	if len(env.publisher.all()) != 0 {
		t.Fatalf("rejected send must not broadcast")
	}

	// 坐席不受锁定限制
	if _, err := env.svc.SendMessage(ctx, 9, true, &protocol.SendRequest{
		ConversationID: convID,
		Content:        "staff reply",
		MessageType:    consts.MessageTypeText,
	}); err != nil {
		t.Fatalf("staff send should bypass lock: %v", err)
	}
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	env := newTestEnv(t, "")
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	_, err := env.svc.SendMessage(context.Background(), 3, false, &protocol.SendRequest{
		ConversationID: convID,
		Content:        "intrusion",
		MessageType:    consts.MessageTypeText,
	})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestSendMessageReplyMustBeSameConversation(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convA := env.addConversation(consts.ConversationTypePrivate, 1, 2)
	convB := env.addConversation(consts.ConversationTypePrivate, 1, 3)

	orig, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: convA,
		Content:        "origin",
		MessageType:    consts.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	_, err = env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: convB,
		Content:        "cross reply",
		MessageType:    consts.MessageTypeText,
		ReplyToID:      orig.ID,
	})
	if !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("expected ErrReplyNotFound, got %v", err)
	}

	if _, err := env.svc.SendMessage(ctx, 2, false, &protocol.SendRequest{
		ConversationID: convA,
		Content:        "valid reply",
		MessageType:    consts.MessageTypeText,
		ReplyToID:      orig.ID,
	}); err != nil {
		t.Fatalf("same-conversation reply should succeed: %v", err)
	}
}

// ---- 表态 ----

func TestAddReactionToggles(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	msg, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: convID,
		Content:        "react to me",
		MessageType:    consts.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	req := &protocol.AddReactionRequest{ConversationID: convID, MessageID: msg.ID, Emoji: "👍"}

	updated, err := env.svc.AddReaction(ctx, 2, false, req)
	if err != nil {
		t.Fatalf("first reaction failed: %v", err)
	}
	if got := updated.Reactions["👍"]; len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected user 2 under 👍, got %v", updated.Reactions)
	}

	// 第二人追加
	updated, err = env.svc.AddReaction(ctx, 1, false, req)
	if err != nil {
		t.Fatalf("second reaction failed: %v", err)
	}
	if got := updated.Reactions["👍"]; len(got) != 2 {
		t.Fatalf("expected two reactors, got %v", got)
	}

	// 同一用户重复表态即取消
	updated, err = env.svc.AddReaction(ctx, 2, false, req)
	if err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if got := updated.Reactions["👍"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected only user 1 left, got %v", updated.Reactions)
	}

	// 最后一人取消后键被移除
	updated, err = env.svc.AddReaction(ctx, 1, false, req)
	if err != nil {
		t.Fatalf("final toggle failed: %v", err)
	}
	if _, ok := updated.Reactions["👍"]; ok {
		t.Fatalf("empty reaction key should be removed, got %v", updated.Reactions)
	}
}

func TestAddReactionUnknownMessage(t *testing.T) {
	env := newTestEnv(t, "")
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	_, err := env.svc.AddReaction(context.Background(), 1, false, &protocol.AddReactionRequest{
		ConversationID: convID,
		MessageID:      "missing",
		Emoji:          "🔥",
	})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

// ---- 支持会话 ----

func TestCreateSupportNotifiesStaffQueue(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	d, err := env.svc.CreateSupport(ctx, 5)
	if err != nil {
		t.Fatalf("create support failed: %v", err)
	}
	if d.Type != consts.ConversationTypeSupport {
		t.Fatalf("expected support type, got %d", d.Type)
	}
	if env.publisher.count(userChan(5), protocol.EvConversationCreated) != 1 {
		t.Fatalf("requester should receive conversation_created")
	}
	if env.publisher.count(consts.ChatStaffQueueChannel, protocol.EvSupportQueueUpdate) != 1 {
		t.Fatalf("staff channel should receive support_queue_update")
	}

	// 支持会话不去重，重复请求各开一单
	if _, err := env.svc.CreateSupport(ctx, 5); err != nil {
		t.Fatalf("second support failed: %v", err)
	}
	if len(env.convRepo.convs) != 2 {
		t.Fatalf("expected 2 support conversations, got %d", len(env.convRepo.convs))
	}
}

func TestAssignSupportSelfClaim(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	d, _ := env.svc.CreateSupport(ctx, 5)
	env.publisher.reset()

	if err := env.svc.AssignSupport(ctx, 100, true, d.ID, 0); err != nil {
		t.Fatalf("self-claim failed: %v", err)
	}

	conv, _ := env.convRepo.GetConversation(ctx, d.ID)
	if conv.AssignedAdminID != 100 {
		t.Fatalf("expected admin 100, got %d", conv.AssignedAdminID)
	}
	ok, _ := env.convRepo.IsMember(ctx, d.ID, 100)
	if !ok {
		t.Fatalf("claiming admin should become a member")
	}
	if env.publisher.count(userChan(5), protocol.EvSupportAssigned) != 1 {
		t.Fatalf("requester should see support_assigned")
	}
	if env.publisher.count(consts.ChatStaffQueueChannel, protocol.EvSupportQueueUpdate) != 1 {
		t.Fatalf("staff queue should be signalled")
	}
}

func TestAssignSupportRetarget(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	d, _ := env.svc.CreateSupport(ctx, 5)
	if err := env.svc.AssignSupport(ctx, 100, true, d.ID, 0); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	// 换绑到另一坐席，旧坐席移出会话
	if err := env.svc.AssignSupport(ctx, 100, true, d.ID, 200); err != nil {
		t.Fatalf("retarget failed: %v", err)
	}

	conv, _ := env.convRepo.GetConversation(ctx, d.ID)
	if conv.AssignedAdminID != 200 {
		t.Fatalf("expected admin 200, got %d", conv.AssignedAdminID)
	}
	if ok, _ := env.convRepo.IsMember(ctx, d.ID, 100); ok {
		t.Fatalf("previous admin should be removed from members")
	}
	if ok, _ := env.convRepo.IsMember(ctx, d.ID, 200); !ok {
		t.Fatalf("new admin should be a member")
	}
}

func TestAssignSupportConflictAndGuards(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	d, _ := env.svc.CreateSupport(ctx, 5)

	if err := env.svc.AssignSupport(ctx, 100, false, d.ID, 0); !errors.Is(err, UnauthorizedError) {
		t.Fatalf("non-staff assign should be rejected, got %v", err)
	}

	private := env.addConversation(consts.ConversationTypePrivate, 1, 2)
	if err := env.svc.AssignSupport(ctx, 100, true, private, 0); !errors.Is(err, ErrNotSupport) {
		t.Fatalf("assigning a private conversation should fail, got %v", err)
	}

	env.locker.denied = true
	if err := env.svc.AssignSupport(ctx, 100, true, d.ID, 0); !errors.Is(err, ErrAssignConflict) {
		t.Fatalf("expected ErrAssignConflict when lock is held, got %v", err)
	}
}

func TestGetSupportQueueOrderAndAccess(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	if _, err := env.svc.GetSupportQueue(ctx, false); !errors.Is(err, UnauthorizedError) {
		t.Fatalf("non-staff queue read should fail, got %v", err)
	}

	first, _ := env.svc.CreateSupport(ctx, 1)
	second, _ := env.svc.CreateSupport(ctx, 2)
	// 第一单被认领后应从队列消失
	if err := env.svc.AssignSupport(ctx, 100, true, first.ID, 0); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	queue, err := env.svc.GetSupportQueue(ctx, true)
	if err != nil {
		t.Fatalf("queue read failed: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != second.ID {
		t.Fatalf("expected only unassigned conversation %d, got %+v", second.ID, queue)
	}
}

func TestNotifySupportQueue(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	if err := env.svc.NotifySupportQueue(ctx); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if len(env.publisher.all()) != 0 {
		t.Fatalf("empty queue must stay silent")
	}

	_, _ = env.svc.CreateSupport(ctx, 5)
	env.publisher.reset()

	if err := env.svc.NotifySupportQueue(ctx); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if env.publisher.count(consts.ChatStaffQueueChannel, protocol.EvSupportQueueUpdate) != 1 {
		t.Fatalf("waiting queue should trigger support_queue_update")
	}
}

// ---- 锁定 / 隐藏 ----

func TestToggleLockAndHide(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	if err := env.svc.ToggleLock(ctx, 1, false, convID, true); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	conv, _ := env.convRepo.GetConversation(ctx, convID)
	if !conv.IsLocked {
		t.Fatalf("conversation should be locked")
	}
	if env.publisher.count(userChan(2), protocol.EvConversationUpdated) != 1 {
		t.Fatalf("peer should see conversation_updated")
	}

	if err := env.svc.ToggleHide(ctx, 1, false, convID, true); err != nil {
		t.Fatalf("hide failed: %v", err)
	}
	conv, _ = env.convRepo.GetConversation(ctx, convID)
	if !conv.IsHidden || !conv.IsLocked {
		t.Fatalf("hide must not clear lock: %+v", conv)
	}

	if err := env.svc.ToggleLock(ctx, 3, false, convID, false); !errors.Is(err, ErrNotMember) {
		t.Fatalf("outsider toggle should fail, got %v", err)
	}
}

// ---- 历史 / 已读 ----

func TestGetHistoryNewestFirst(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	for _, content := range []string{"one", "two", "three"} {
		if _, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
			ConversationID: convID,
			Content:        content,
			MessageType:    consts.MessageTypeText,
		}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	history, err := env.svc.GetHistory(ctx, 2, false, convID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	if history[0].Content != "three" || history[2].Content != "one" {
		t.Fatalf("history should be newest-first, got %q .. %q", history[0].Content, history[2].Content)
	}

	if _, err := env.svc.GetHistory(ctx, 3, false, convID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("outsider history read should fail, got %v", err)
	}
}

func TestMarkReadRebroadcastsLastMessage(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	convID := env.addConversation(consts.ConversationTypePrivate, 1, 2)

	msg, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: convID,
		Content:        "unread",
		MessageType:    consts.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	env.publisher.reset()

	if err := env.svc.MarkRead(ctx, 2, false, convID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}

	stored, _ := env.msgRepo.GetMessage(ctx, convID, msg.ID)
	if !stored.HasRead(2) {
		t.Fatalf("reader should be recorded, got %v", stored.ReadBy)
	}
	if env.publisher.count(userChan(1), protocol.EvMessage) != 1 {
		t.Fatalf("sender should see the read receipt replay")
	}
}

// ---- 口令校验 ----

func TestVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("open-sesame")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	env := newTestEnv(t, hash)

	if !env.svc.VerifyPassword("open-sesame") {
		t.Fatalf("correct password should verify")
	}
	if env.svc.VerifyPassword("wrong") {
		t.Fatalf("wrong password must not verify")
	}
	if env.svc.VerifyPassword("") {
		t.Fatalf("empty password must not verify")
	}

	unguarded := newTestEnv(t, "")
	if unguarded.svc.VerifyPassword("anything") {
		t.Fatalf("missing guard hash must reject all")
	}
}

// ---- 未知会话 ----

func TestOperationsOnMissingConversation(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, 1, false, &protocol.SendRequest{
		ConversationID: 42,
		Content:        "void",
		MessageType:    consts.MessageTypeText,
	}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := env.svc.GetHistory(ctx, 1, false, 42); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if err := env.svc.AssignSupport(ctx, 1, true, 42, 0); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
