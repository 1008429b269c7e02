package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/rvs/internal/config"
	"github.com/blues/rvs/internal/database"
	"github.com/blues/rvs/internal/logger"
	"github.com/blues/rvs/internal/logic"
	"github.com/blues/rvs/internal/router"
	"github.com/blues/rvs/internal/scheduler"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	if err := logger.Setup(cfg.Log.Level, cfg.Log.Output, cfg.Log.File); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	vaultLogic := logic.NewVaultLogic(db, logic.WithDefaultDuration(cfg.Raffle.DefaultDuration))
	accountLogic := logic.NewAccountLogic(db, cfg.Custody.AllowDeposit)
	eventLogic := logic.NewEventLogic(db)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(cfg, vaultLogic, accountLogic, eventLogic)

	// 启动定时任务
	manager, err := scheduler.Start(vaultLogic, cfg)
	if err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	manager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
}
