package repository

import (
	"context"
	"phrasal_tutor_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserProgressRepository struct {
	DB *gorm.DB
}

func NewUserProgressRepository(db *gorm.DB) *UserProgressRepository {
	return &UserProgressRepository{DB: db}
}

// FindByUserID 不存在时返回 gorm.ErrRecordNotFound
func (r *UserProgressRepository) FindByUserID(ctx context.Context, userID string) (*model.UserProgress, error) {
	var p model.UserProgress
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreate 并发首次会话时依赖 user_id 唯一索引去重
func (r *UserProgressRepository) GetOrCreate(ctx context.Context, userID string) (*model.UserProgress, error) {
	p := &model.UserProgress{UserID: userID, CurrentIndex: 0}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

// SetIndex upsert：不存在则创建，否则更新 current_index
func (r *UserProgressRepository) SetIndex(ctx context.Context, userID string, index int) error {
	p := &model.UserProgress{UserID: userID, CurrentIndex: index}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_index", "updated_at"}),
		}).
		Create(p).Error
}
