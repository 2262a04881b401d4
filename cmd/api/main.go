package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meal-randomizer/internal/api"
	"meal-randomizer/internal/core/ai/cache"
	"meal-randomizer/internal/core/meal"
	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 載入 .env
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	// 載入設定
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.Int("gemini_key_count", len(cfg.Gemini.KeyPool())),
		zap.String("gemini_model", cfg.Gemini.Model),
		zap.String("overpass_endpoint", cfg.Overpass.BaseURL),
	)

	// 初始化快取；後端可選 memory 或 redis
	var cacheStore cache.Store
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case "redis":
			redisStore, err := cache.NewService(&cfg.Cache)
			if err != nil {
				common.LogFatal("Failed to initialize redis cache", zap.Error(err))
			}
			cacheStore = redisStore
		default:
			manager := cache.NewManager(cfg)
			if manager == nil {
				common.LogFatal("Failed to initialize cache manager")
			}
			cacheStore = manager
		}
		defer cacheStore.Close()
	}

	// 初始化會話註冊表
	sessions := meal.NewManager(&cfg.Session)
	defer sessions.Close()

	// 設置路由
	router, err := api.SetupRouter(cfg, cacheStore, sessions)
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogError("Failed to start server",
				zap.Error(err),
			)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown",
			zap.Error(err),
		)
		os.Exit(1)
	}

	common.LogInfo("Server exited")
}
