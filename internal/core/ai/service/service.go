package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"meal-randomizer/internal/core/ai/cache"
	"meal-randomizer/internal/core/ai/gemini"
	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"
)

// Response AI 回應結構
type Response struct {
	Content  string
	CacheHit bool
}

// Service AI 服務：頻率檢查、prompt 正規化、緩存查詢、閘道呼叫
type Service struct {
	config      *config.Config
	gateway     *gemini.Client
	cacheStore  cache.Store
	mu          sync.Mutex
	lastRequest time.Time
}

// NewService 創建 AI 服務
func NewService(cfg *config.Config, gateway *gemini.Client, store cache.Store) *Service {
	return &Service{
		config:     cfg,
		gateway:    gateway,
		cacheStore: store,
	}
}

// ProcessRequest 統一對外方法；jsonMode 為真時要求端點回傳 JSON
func (s *Service) ProcessRequest(ctx context.Context, prompt string, jsonMode bool) (*Response, error) {
	if err := s.checkRequestRate(); err != nil {
		return nil, err
	}

	// 統一 prompt 格式，收斂多餘空白，確保快取 key 一致。
	// prompt 為英文文本，字詞間保留單一空格。
	prompt = strings.Join(strings.Fields(prompt), " ")

	// 檢查緩存
	if s.config.Cache.Enabled && s.cacheStore != nil {
		if val, err := s.cacheStore.Get(ctx, prompt); err == nil && val != "" {
			return &Response{Content: val, CacheHit: true}, nil
		}
	}

	start := time.Now()
	var content string
	var err error
	if jsonMode {
		content, err = s.gateway.GenerateJSON(ctx, prompt)
	} else {
		content, err = s.gateway.GenerateText(ctx, prompt)
	}
	common.LogAICall(prompt, time.Since(start), err, "")
	if err != nil {
		return nil, err
	}

	if s.config.Cache.Enabled && s.cacheStore != nil {
		_ = s.cacheStore.Set(ctx, prompt, content)
	}

	return &Response{Content: content}, nil
}

// checkRequestRate 檢查請求頻率
func (s *Service) checkRequestRate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.config.RateLimit.Enabled && now.Sub(s.lastRequest) < s.config.RateLimit.Window {
		return errors.New("request rate limit exceeded")
	}

	s.lastRequest = now
	return nil
}
