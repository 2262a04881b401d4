package api

import (
	"context"
	"net/http"
	"time"

	"meal-randomizer/internal/api/handlers/health"
	randomizerHandler "meal-randomizer/internal/api/handlers/randomizer"
	"meal-randomizer/internal/api/middleware"
	"meal-randomizer/internal/core/ai/cache"
	"meal-randomizer/internal/core/ai/gemini"
	"meal-randomizer/internal/core/ai/service"
	"meal-randomizer/internal/core/image"
	"meal-randomizer/internal/core/meal"
	"meal-randomizer/internal/core/place"
	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 超時設置：隨機流程含轉盤與多次外呼，給足裕度
	timeoutDuration = 60 * time.Second
	// 請求體大小限制 (1MB)：所有請求體都是小型 JSON
	maxBodySize = 1 << 20
)

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, cacheStore cache.Store, sessions *meal.Manager) (*gin.Engine, error) {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	router.Use(middleware.BodySizeLimit(maxBodySize))

	// 限流（預設關閉）
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	common.LogInfo("Initializing services",
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("key_count", len(cfg.Gemini.KeyPool())),
		zap.Duration("timeout", timeoutDuration),
	)

	// 初始化服務
	gateway := gemini.NewClient(cfg.Gemini.KeyPool(), cfg.Gemini.Model, cfg.Gemini.BaseURL, cfg.Gemini.Timeout)
	aiService := service.NewService(cfg, gateway, cacheStore)
	placeService := place.NewService(&cfg.Overpass)
	imageService := image.NewService(&cfg.Unsplash)

	suggestionSvc := meal.NewSuggestionService(aiService)
	nutritionSvc := meal.NewNutritionService(aiService)
	randomizer := meal.NewRandomizer(&cfg.Randomizer, suggestionSvc, imageService)

	// 請求超時
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetHeader("X-Request-ID")),
				zap.Duration("timeout", timeoutDuration),
			)
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Request timeout",
				"code":  common.ErrCodeRequestTimeout,
			})
			c.Abort()
		}
	})

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg, sessions)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API 路由組
	api := router.Group("/api/v1")
	{
		h := randomizerHandler.NewHandler(sessions, randomizer, placeService, nutritionSvc)

		api.POST("/session", h.CreateSession)

		sessionGroup := api.Group("/session/:id")
		{
			sessionGroup.GET("/state", h.GetState)
			sessionGroup.POST("/profile", h.SetProfile)
			sessionGroup.POST("/toggle/:slot", h.ToggleCategory)
			sessionGroup.POST("/nearby", h.FindNearby)

			// 轉盤端點連點只放行第一次
			spinGroup := sessionGroup.Group("")
			spinGroup.Use(middleware.Deduplication(cfg))
			{
				spinGroup.POST("/randomize", h.Randomize)
				spinGroup.POST("/reroll/:slot", h.Reroll)
			}

			sessionGroup.POST("/analyze", h.Analyze)
			sessionGroup.POST("/favorites", h.ToggleFavorite)
			sessionGroup.PUT("/favorites/:fid", h.UpdateReview)
			sessionGroup.POST("/exclusions", h.BanItem)
			sessionGroup.DELETE("/exclusions", h.ClearExclusions)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
		zap.Duration("timeout", timeoutDuration),
		zap.Int64("max_body_size", maxBodySize),
	)

	return router, nil
}
