package service

import (
	"context"
	"errors"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"

	"gorm.io/gorm"
)

type ProgressService struct {
	Repo       *repository.UserProgressRepository
	Curriculum *model.Curriculum
}

func NewProgressService(repo *repository.UserProgressRepository, curriculum *model.Curriculum) *ProgressService {
	return &ProgressService{Repo: repo, Curriculum: curriculum}
}

type ProgressSnapshot struct {
	Index int
	Entry model.CurriculumEntry
}

type AdvanceResult struct {
	NextIndex int
	Entry     model.CurriculumEntry
	Completed bool
}

// GetOrCreate 首次访问时以下标 0 建档
func (s *ProgressService) GetOrCreate(ctx context.Context, userID string) (*ProgressSnapshot, error) {
	p, err := s.Repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	index := s.Curriculum.Clamp(p.CurrentIndex)
	return &ProgressSnapshot{Index: index, Entry: s.Curriculum.At(index)}, nil
}

// Advance 前进一步并停在最后一个条目；只有已在末尾时再次调用才算完成
func (s *ProgressService) Advance(ctx context.Context, userID string) (*AdvanceResult, error) {
	current := 0
	p, err := s.Repo.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		current = s.Curriculum.Clamp(p.CurrentIndex)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, err
	}

	last := s.Curriculum.LastIndex()
	next := min(current+1, last)
	if err := s.Repo.SetIndex(ctx, userID, next); err != nil {
		return nil, err
	}

	return &AdvanceResult{
		NextIndex: next,
		Entry:     s.Curriculum.At(next),
		Completed: next == last && current == last,
	}, nil
}
