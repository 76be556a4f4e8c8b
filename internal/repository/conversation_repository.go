package repository

import (
	"context"
	"phrasal_tutor_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// ConversationRepository 会话记录（transcript ledger）的持久化
// 同一会话的追加由 ChatProxy 串行调用，这里不再加锁
type ConversationRepository struct {
	DB *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

func (r *ConversationRepository) CreateConversation(ctx context.Context, userID string, targetVerb *string) (*model.Conversation, error) {
	conv := &model.Conversation{
		UserID:            userID,
		StartedAt:         time.Now().UTC(),
		TargetPhrasalVerb: targetVerb,
	}
	if err := r.DB.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessage 时间戳在追加时分配，追加顺序即时间顺序
// 已结束的会话返回 model.ErrConversationEnded，结束后的记录不再变化
func (r *ConversationRepository) AppendMessage(ctx context.Context, conversationID string, role model.MessageRole, content string) error {
	msg := &model.ConversationMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.Select("id", "ended_at").First(&conv, "id = ?", conversationID).Error; err != nil {
			return err
		}
		if conv.EndedAt != nil {
			return model.ErrConversationEnded
		}
		return tx.Create(msg).Error
	})
}

func (r *ConversationRepository) GetMessages(ctx context.Context, conversationID string) ([]model.ConversationMessage, error) {
	var msgs []model.ConversationMessage
	err := r.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// GetConversation 不存在时返回 gorm.ErrRecordNotFound
func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Finalize 只在 ended_at 为空时写入，返回本次调用是否真正结束了会话
func (r *ConversationRepository) Finalize(ctx context.Context, id string) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND ended_at IS NULL", id).
		Update("ended_at", time.Now().UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindOpenStartedBefore 查找开始早于 cutoff 且尚未结束的会话
func (r *ConversationRepository) FindOpenStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.DB.WithContext(ctx).
		Where("ended_at IS NULL AND started_at < ?", cutoff).
		Order("started_at ASC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}
