package service

import (
	"context"
	"testing"

	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoVerbCurriculum() *model.Curriculum {
	return model.NewCurriculum([]model.CurriculumEntry{
		{Verb: "look up", Level: model.LevelA2},
		{Verb: "give in", Level: model.LevelB1},
	})
}

func newProgressService(t *testing.T) *ProgressService {
	t.Helper()
	return NewProgressService(repository.NewUserProgressRepository(testutil.DB(t)), twoVerbCurriculum())
}

func TestProgressService_AdvanceCeiling(t *testing.T) {
	svc := newProgressService(t)
	ctx := context.Background()

	res, err := svc.Advance(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, 1, res.NextIndex)
	assert.Equal(t, model.CurriculumEntry{Verb: "give in", Level: model.LevelB1}, res.Entry)
	assert.False(t, res.Completed)

	res, err = svc.Advance(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, 1, res.NextIndex)
	assert.Equal(t, "give in", res.Entry.Verb)
	assert.True(t, res.Completed)

	res, err = svc.Advance(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, 1, res.NextIndex)
	assert.True(t, res.Completed)
}

func TestProgressService_GetOrCreateStartsAtZero(t *testing.T) {
	svc := newProgressService(t)
	ctx := context.Background()

	snap, err := svc.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, "look up", snap.Entry.Verb)

	_, err = svc.Advance(ctx, "user-1")
	require.NoError(t, err)

	snap, err = svc.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, model.LevelB1, snap.Entry.Level)
}

func TestProgressService_ClampsStoredIndex(t *testing.T) {
	svc := newProgressService(t)
	ctx := context.Background()

	// 课程表缩短后，库中的旧下标可能越界
	require.NoError(t, svc.Repo.SetIndex(ctx, "user-1", 40))

	snap, err := svc.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Index)

	res, err := svc.Advance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.NextIndex)
	assert.True(t, res.Completed)
}

func TestProgressService_SingleEntryCurriculum(t *testing.T) {
	svc := NewProgressService(
		repository.NewUserProgressRepository(testutil.DB(t)),
		model.NewCurriculum([]model.CurriculumEntry{{Verb: "look up", Level: model.LevelA2}}),
	)

	res, err := svc.Advance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.NextIndex)
	assert.True(t, res.Completed)
}
