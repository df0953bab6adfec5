package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	// GetHistory 返回会话最近的消息，按时间倒序（最新在前），客户端负责反转
	GetHistory(ctx context.Context, convID uint64, limit int) ([]*Message, error)
	GetMessage(ctx context.Context, convID uint64, msgID string) (*Message, error)
	// UpdateReactions 覆盖写入整个 reactions 映射，toggle 计算由上层在会话锁内完成
	UpdateReactions(ctx context.Context, convID uint64, msgID string, reactions map[string][]uint64) error
	// MarkRead 将会话内他人发送的消息标记为指定用户已读
	MarkRead(ctx context.Context, convID uint64, userID uint64) error
	GetLastMessage(ctx context.Context, convID uint64) (*Message, error)
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("message"),
	}
}

// SaveMessage 将消息存入 MongoDB
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

func (s *messageRepoImpl) GetHistory(ctx context.Context, convID uint64, limit int) ([]*Message, error) {
	filter := bson.M{"conversation_id": convID}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// GetMessage 精确查询，会话 ID 一并过滤以防跨会话访问
func (s *messageRepoImpl) GetMessage(ctx context.Context, convID uint64, msgID string) (*Message, error) {
	var msg Message
	filter := bson.M{
		"_id":             msgID,
		"conversation_id": convID,
	}
	err := s.col.FindOne(ctx, filter).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *messageRepoImpl) UpdateReactions(ctx context.Context, convID uint64, msgID string, reactions map[string][]uint64) error {
	filter := bson.M{
		"_id":             msgID,
		"conversation_id": convID,
	}
	_, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"reactions": reactions}})
	return err
}

func (s *messageRepoImpl) MarkRead(ctx context.Context, convID uint64, userID uint64) error {
	filter := bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": userID},
	}
	_, err := s.col.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"read_by": userID}})
	return err
}

func (s *messageRepoImpl) GetLastMessage(ctx context.Context, convID uint64) (*Message, error) {
	var msg Message
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := s.col.FindOne(ctx, bson.M{"conversation_id": convID}, opts).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
