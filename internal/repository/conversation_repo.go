package repository

import (
	"Fitlink/internal/model"
	"Fitlink/internal/pkg/consts"
	"context"
	"time"

	"gorm.io/gorm"
)

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error)
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error)
	GetUserConversations(ctx context.Context, userID uint64) ([]*model.Conversation, error)

	UpdateLastMessage(ctx context.Context, convID uint64, msgID, content string, msgType int8, senderID uint64, at time.Time) error
	SetLocked(ctx context.Context, convID uint64, locked bool) error
	SetHidden(ctx context.Context, convID uint64, hidden bool) error
	// AssignAdmin 换绑支持会话坐席：更新 assigned_admin_id 并同步成员表
	AssignAdmin(ctx context.Context, convID uint64, prevAdminID, adminID uint64) error

	ListUnassignedSupport(ctx context.Context) ([]*model.Conversation, error)
	CountUnassignedSupport(ctx context.Context) (int64, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 开启事务创建会话及初始成员
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, members []*model.ConversationMember) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.ConversationID = conv.ID
			m.JoinedAt = time.Now()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	return &conv, err
}

// GetConversationByPeerKey 根据会话标识获取会话（私聊去重）
func (s *conversationRepoImpl) GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
	return &conv, err
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMemberIDs 获取会话全部成员 ID，用于事件扇出
func (s *conversationRepoImpl) GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// GetUserConversations 用户参与的全部会话，按最近消息倒序
func (s *conversationRepoImpl) GetUserConversations(ctx context.Context, userID uint64) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := s.db.WithContext(ctx).Table("conversations c").
		Select("c.*").
		Joins("JOIN conversation_members m ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("c.last_message_at DESC").
		Find(&convs).Error
	return convs, err
}

// UpdateLastMessage 更新会话的最近消息预览与排序时间戳
func (s *conversationRepoImpl) UpdateLastMessage(ctx context.Context, convID uint64, msgID, content string, msgType int8, senderID uint64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", convID).
		Updates(map[string]interface{}{
			"last_msg_id":      msgID,
			"last_msg_content": content,
			"last_msg_type":    msgType,
			"last_sender_id":   senderID,
			"last_message_at":  at,
		}).Error
}

func (s *conversationRepoImpl) SetLocked(ctx context.Context, convID uint64, locked bool) error {
	return s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", convID).
		Update("is_locked", locked).Error
}

func (s *conversationRepoImpl) SetHidden(ctx context.Context, convID uint64, hidden bool) error {
	return s.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", convID).
		Update("is_hidden", hidden).Error
}

// AssignAdmin 事务内换绑坐席：旧坐席移出成员表，新坐席加入
func (s *conversationRepoImpl) AssignAdmin(ctx context.Context, convID uint64, prevAdminID, adminID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Conversation{}).Where("id = ?", convID).
			Update("assigned_admin_id", adminID).Error
		if err != nil {
			return err
		}

		if prevAdminID != 0 && prevAdminID != adminID {
			err = tx.Where("conversation_id = ? AND user_id = ?", convID, prevAdminID).
				Delete(&model.ConversationMember{}).Error
			if err != nil {
				return err
			}
		}

		var count int64
		err = tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", convID, adminID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return tx.Create(&model.ConversationMember{
				ConversationID: convID,
				UserID:         adminID,
				JoinedAt:       time.Now(),
			}).Error
		}
		return nil
	})
}

// ListUnassignedSupport 待分配的支持会话，等待最久的在前
func (s *conversationRepoImpl) ListUnassignedSupport(ctx context.Context) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := s.db.WithContext(ctx).
		Where("type = ? AND assigned_admin_id = 0", consts.ConversationTypeSupport).
		Order("created_at ASC").
		Find(&convs).Error
	return convs, err
}

func (s *conversationRepoImpl) CountUnassignedSupport(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("type = ? AND assigned_admin_id = 0", consts.ConversationTypeSupport).
		Count(&count).Error
	return count, err
}
