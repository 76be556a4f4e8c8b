package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/controller"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/internal/service"
	"phrasal_tutor_backend/pkg/configwatcher"
	"phrasal_tutor_backend/pkg/database"
	"phrasal_tutor_backend/pkg/logger"
	"phrasal_tutor_backend/pkg/monitoring"
	"phrasal_tutor_backend/pkg/security"
	"phrasal_tutor_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	conversation *repository.ConversationRepository
	userProgress *repository.UserProgressRepository
	gapFill      *repository.GapFillRepository
}

type services struct {
	auth      *service.AuthService
	ai        *service.AIService
	progress  *service.ProgressService
	gapFill   *service.GapFillService
	presence  *service.SessionPresence
	archiver  *service.TranscriptArchiver
	chatProxy *service.ChatProxy
	sweeper   *service.SessionSweeper
}

type controllers struct {
	chat     *controller.ChatController
	gapFill  *controller.GapFillController
	progress *controller.ProgressController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		conversation: repository.NewConversationRepository(db),
		userProgress: repository.NewUserProgressRepository(db),
		gapFill:      repository.NewGapFillRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(cfg.JWT)
	s.ai = service.NewAIService(cfg.AI)
	s.progress = service.NewProgressService(repos.userProgress, model.NewCurriculum(model.PhrasalVerbs))
	s.gapFill = service.NewGapFillService(repos.conversation, repos.gapFill, s.ai)
	s.presence = service.NewSessionPresence(rdb)

	storageCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	provider, err := service.NewStorageProvider(storageCtx, &cfg.Storage)
	if err != nil {
		// 归档是附加功能，存储不可用时继续启动
		logger.Log.Error("Failed to initialize transcript storage, archiving disabled", zap.Error(err))
		provider = nil
	}
	s.archiver = service.NewTranscriptArchiver(provider, repos.conversation)

	var backend service.ModelBackend = s.ai
	if cfg.AI.Transport == "websocket" {
		backend = service.NewWSModelBackend(cfg.AI.WSURL)
	}

	s.chatProxy = service.NewChatProxy(
		s.auth,
		s.progress,
		repos.conversation,
		backend,
		s.presence,
		s.archiver,
		cfg.Chat,
		cfg.CORS.AllowedOrigins,
	)

	if cfg.Sweeper.Enabled {
		s.sweeper = service.NewSessionSweeper(repos.conversation, s.presence, s.chatProxy, cfg.Sweeper)
	}

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB) *controllers {
	return &controllers{
		chat:     controller.NewChatController(s.chatProxy, repos.conversation),
		gapFill:  controller.NewGapFillController(s.gapFill),
		progress: controller.NewProgressController(s.progress),
		health:   controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	if s.sweeper == nil {
		return
	}
	if err := s.sweeper.Start(); err != nil {
		logger.Log.Error("Failed to start session sweeper", zap.Error(err))
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	// 只做表结构初始化
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, services)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetMode(newCfg.Server.Mode)
		logger.Log.Info("Log level updated", zap.String("mode", newCfg.Server.Mode))
	})

	app.startBackgroundTasks(services)

	return app
}

func (a *App) watchConfig(ctx context.Context) {
	err := configwatcher.WatchConfig(ctx, configDir, func(newCfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config watcher disabled", zap.Error(err))
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// 先停止接收新请求，再结束所有会话，确保每个会话写入 ended_at
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if a.services != nil {
		if err := a.services.chatProxy.Shutdown(ctx); err != nil {
			logger.Log.Error("Chat sessions did not finish in time", zap.Error(err))
		}
		if a.services.sweeper != nil {
			a.services.sweeper.Stop()
		}
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Log.Info("Server exiting")
}
