package service

import (
	"context"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/pkg/logger"
	"phrasal_tutor_backend/pkg/monitoring"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const sweepBatchSize = 200

// LiveSessions 本进程仍持有连接的会话
type LiveSessions interface {
	IsLive(conversationID string) bool
}

// SessionSweeper 定期补写孤儿会话的 ended_at：开始时间早于 StaleAfter、本进程未持有且没有在线心跳
type SessionSweeper struct {
	ConvRepo   *repository.ConversationRepository
	Presence   *SessionPresence
	Live       LiveSessions
	StaleAfter time.Duration
	Interval   time.Duration

	scheduler *gocron.Scheduler
}

func NewSessionSweeper(convRepo *repository.ConversationRepository, presence *SessionPresence, live LiveSessions, cfg config.SweeperConfig) *SessionSweeper {
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SessionSweeper{
		ConvRepo:   convRepo,
		Presence:   presence,
		Live:       live,
		StaleAfter: cfg.StaleAfter,
		Interval:   interval,
	}
}

func (s *SessionSweeper) Start() error {
	s.scheduler = gocron.NewScheduler(time.UTC)
	s.scheduler.SingletonModeAll()
	if _, err := s.scheduler.Every(s.Interval).Do(s.run); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	logger.Log.Info("Session sweeper started",
		zap.Duration("interval", s.Interval),
		zap.Duration("staleAfter", s.StaleAfter))
	return nil
}

func (s *SessionSweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *SessionSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.Sweep(ctx, time.Now().UTC()); err != nil {
		logger.Log.Error("Session sweep failed", zap.Error(err))
	}
}

// Sweep 返回本次结束的会话数
func (s *SessionSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	convs, err := s.ConvRepo.FindOpenStartedBefore(ctx, now.Add(-s.StaleAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, conv := range convs {
		if s.Live != nil && s.Live.IsLive(conv.ID) {
			continue
		}
		open, err := s.Presence.IsOpen(ctx, conv.ID)
		if err != nil {
			// redis 不可用时宁可不清扫
			logger.Log.Warn("Presence check failed", zap.String("conversationId", conv.ID), zap.Error(err))
			continue
		}
		if open {
			continue
		}
		ended, err := s.ConvRepo.Finalize(ctx, conv.ID)
		if err != nil {
			logger.Log.Error("Failed to finalize stale session", zap.String("conversationId", conv.ID), zap.Error(err))
			continue
		}
		if ended {
			swept++
			monitoring.SweptSessionsTotal.Inc()
		}
	}

	if swept > 0 {
		logger.Log.Info("Stale sessions finalized", zap.Int("count", swept))
	}
	return swept, nil
}
