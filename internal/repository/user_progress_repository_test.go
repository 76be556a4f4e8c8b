package repository

import (
	"context"
	"testing"

	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUserProgressRepository_GetOrCreate(t *testing.T) {
	db := testutil.DB(t)
	repo := NewUserProgressRepository(db)
	ctx := context.Background()

	_, err := repo.FindByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	p, err := repo.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.CurrentIndex)

	again, err := repo.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&model.UserProgress{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUserProgressRepository_SetIndexUpserts(t *testing.T) {
	db := testutil.DB(t)
	repo := NewUserProgressRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SetIndex(ctx, "user-1", 1))
	p, err := repo.FindByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentIndex)

	require.NoError(t, repo.SetIndex(ctx, "user-1", 2))
	p, err = repo.FindByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.CurrentIndex)

	var count int64
	require.NoError(t, db.Model(&model.UserProgress{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUserProgressRepository_RejectsInvalid(t *testing.T) {
	repo := NewUserProgressRepository(testutil.DB(t))
	ctx := context.Background()

	assert.ErrorIs(t, repo.SetIndex(ctx, "", 0), model.ErrInvalidRecord)
	assert.ErrorIs(t, repo.SetIndex(ctx, "user-1", -1), model.ErrInvalidRecord)
}
