// 手动触发过期会话清理脚本
//
// 该功能已集成到主应用的后台定时任务中（sweeper.enabled 为 true 时按 interval_minutes 执行）。
// 此脚本用于手动触发，例如实例异常退出后立即补写 ended_at。
//
// 用法: go run scripts/sweep_sessions.go

package main

import (
	"context"
	"log"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/internal/service"
	"phrasal_tutor_backend/pkg/database"
	"phrasal_tutor_backend/pkg/logger"
	"time"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Redis 连接失败: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	sweeper := service.NewSessionSweeper(
		repository.NewConversationRepository(db),
		service.NewSessionPresence(rdb),
		// 独立进程看不到服务实例的连接，只能依赖 redis 在线标记；仍在线的会话追加消息时会被结束
		nil,
		cfg.Sweeper,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Println("手动触发过期会话清理...")
	n, err := sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}
	log.Printf("完成！已结束 %d 个会话", n)
}
