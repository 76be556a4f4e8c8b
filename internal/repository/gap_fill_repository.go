package repository

import (
	"context"
	"phrasal_tutor_backend/internal/model"

	"gorm.io/gorm"
)

type GapFillRepository struct {
	DB *gorm.DB
}

func NewGapFillRepository(db *gorm.DB) *GapFillRepository {
	return &GapFillRepository{DB: db}
}

func (r *GapFillRepository) Create(ctx context.Context, set *model.GapFillExercise) error {
	return r.DB.WithContext(ctx).Create(set).Error
}

func (r *GapFillRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.GapFillExercise, error) {
	var sets []model.GapFillExercise
	err := r.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&sets).Error
	return sets, err
}
