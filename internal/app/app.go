package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/controller"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/service"
	"exam_engine_backend/pkg/database"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/security"
	"exam_engine_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services *services
	shutdown []func(context.Context) error
}

type repositories struct {
	user       *repository.UserRepository
	assessment *repository.AssessmentRepository
	submission *repository.SubmissionRepository
}

type services struct {
	auth       *service.AuthService
	assessment *service.AssessmentService
	sandbox    *service.SandboxService
	archive    *service.ArchiveService
	session    *service.SessionService
	grading    *service.GradingService
}

type controllers struct {
	auth       *controller.AuthController
	assessment *controller.AssessmentController
	session    *controller.SessionController
	grading    *controller.GradingController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		assessment: repository.NewAssessmentRepository(db),
		submission: repository.NewSubmissionRepository(db, rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.assessment = service.NewAssessmentService(repos.assessment)
	s.sandbox = service.NewSandboxService(cfg.Sandbox)
	s.archive = service.NewArchiveService(cfg)

	// 提交链路：落库成功后尽力归档编程题代码
	sink := &service.ArchivingSink{Sink: repos.submission, Archive: s.archive}
	s.session = service.NewSessionService(repos.assessment, sink, s.sandbox)
	s.grading = service.NewGradingService(repos.submission, repos.assessment)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		assessment: controller.NewAssessmentController(s.assessment),
		session:    controller.NewSessionController(s.session, s.grading),
		grading:    controller.NewGradingController(s.grading),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-engine", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.shutdown = append(app.shutdown, tp.Shutdown)
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Archive.Type == "local" && cfg.Archive.LocalPath != "" {
		router.Static("/archive", cfg.Archive.LocalPath)
	}

	return app
}

// ApplyConfig 配置文件变更时热更新可安全替换的运行参数
func (a *App) ApplyConfig(cfg *config.Config) {
	a.services.sandbox.SetConfig(cfg.Sandbox)
	logger.Log.Info("runtime config reloaded",
		zap.String("sandboxCommand", cfg.Sandbox.Command),
		zap.Int("sandboxTimeoutSeconds", cfg.Sandbox.TimeoutSeconds))
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil {
			logger.Log.Error("shutdown hook failed", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
