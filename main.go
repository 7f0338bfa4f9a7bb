package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deltauid-backend-go/internal/client"
	"deltauid-backend-go/internal/config"
	"deltauid-backend-go/internal/handler"
	applog "deltauid-backend-go/internal/logger"
	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/notifier"
	"deltauid-backend-go/internal/repository"
	"deltauid-backend-go/internal/service"
	"deltauid-backend-go/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	logger, err := applog.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)

	// 创建路由
	router := gin.Default()

	// 健康检查端点
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "deltauid-backend-go",
			"version":   "1.0.0",
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "三角洲行动 扫码登录服务",
			"version": "1.0.0",
			"endpoints": gin.H{
				"login":       "/api/login",
				"credentials": "/api/credentials",
			},
		})
	})

	// 初始化数据库连接
	db, err := repository.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库初始化失败", zap.Error(err))
	}
	defer db.Close()

	// 初始化Repository
	credentialRepo := repository.NewCredentialRepository(db, logger)

	// 初始化Client
	deltaAPI := client.NewDeltaAPI(client.DeltaAPIConfig{
		BaseURL:      cfg.Delta.BaseURL,
		Timeout:      cfg.Delta.HTTPTimeout,
		RateLimitQPS: cfg.Delta.RateLimitQPS,
	}, logger)
	strategies := func(p model.Platform) (client.PlatformStrategy, error) {
		return client.NewStrategy(p, deltaAPI)
	}
	oneBot := notifier.NewOneBotClient(cfg.OneBot.APIURL, cfg.OneBot.AccessToken, logger)

	// 初始化Service
	loginService := service.NewLoginService(strategies, credentialRepo, oneBot, cfg.Login, logger)
	credentialService := service.NewCredentialService(credentialRepo, strategies, logger)

	// 初始化Worker Manager
	workerManager := worker.NewManager(worker.ManagerConfig{
		QueueCapacity: cfg.Login.QueueCapacity,
		Concurrency:   cfg.Login.Concurrency,
		RateLimitQPS:  cfg.Login.RateLimitQPS,
	}, loginService, logger)

	if err := workerManager.Start(); err != nil {
		logger.Fatal("启动Worker管理器失败", zap.Error(err))
	}
	defer workerManager.Stop()

	// 初始化定时任务服务
	cronService := service.NewCronService(credentialService, cfg.Cron.CredentialRefreshSpec, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatal("启动定时任务失败", zap.Error(err))
	}
	defer cronService.Stop()

	// 初始化Handler
	loginHandler := handler.NewLoginHandler(workerManager, logger)
	credentialHandler := handler.NewCredentialHandler(credentialService, cfg.Security.CredentialAddSalt, logger)

	// 设置中间件
	router.Use(handler.CORSMiddleware())

	// 创建认证中间件
	authMiddleware := handler.AuthMiddleware(cfg.Security.AdminToken, logger)

	// 注册API路由
	api := router.Group("/api")
	{
		loginHandler.RegisterRoutes(api, authMiddleware)
		credentialHandler.RegisterRoutes(api, authMiddleware)
	}

	router.GET("/test/db", authMiddleware, func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(500, gin.H{"error": "数据库连接失败", "details": err.Error()})
			return
		}

		count, err := credentialRepo.Count(c.Request.Context())
		if err != nil {
			c.JSON(500, gin.H{"error": "查询凭据失败", "details": err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"success":           true,
			"database":          db.Driver(),
			"credentials_count": count,
			"worker_stats":      workerManager.GetStats(),
			"timestamp":         time.Now().Format(time.RFC3339),
		})
	})

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 在goroutine中启动服务器
	go func() {
		logger.Info("🚀 服务器启动成功",
			zap.String("port", cfg.Server.Port),
			zap.String("url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port)))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号优雅关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")

	// 给定5秒的关闭时间
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("服务器强制关闭", zap.Error(err))
	}

	logger.Info("服务器已关闭")
}
