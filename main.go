package main

import (
	"flag"
	"log"
	"phrasal_tutor_backend/internal/app"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/pkg/logger"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只初始化数据库表结构，完成后退出")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	if *migrateOnly {
		log.Println("Database schema ready, exiting")
		return
	}

	application.Run()
}
