package image

import (
	"context"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"
)

// searchResponse Unsplash 搜尋回應體
type searchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Service 圖片搜尋服務。
// 同一查詢詞只打一次端點，結果（含查無圖片與傳輸失敗）都記入
// 記憶表，之後的相同查詢直接回傳。
type Service struct {
	httpClient *resty.Client
	config     *config.UnsplashConfig

	mu   sync.RWMutex
	memo map[string]string
}

// NewService 創建圖片搜尋服務
func NewService(cfg *config.UnsplashConfig) *Service {
	client := resty.New().
		SetTimeout(cfg.Timeout)

	return &Service{
		httpClient: client,
		config:     cfg,
		memo:       make(map[string]string),
	}
}

// ResolveImage 解析查詢詞對應的圖片網址。
// 哨兵值（N/A、錯誤標記、空字串）不觸發搜尋，直接回傳空字串。
// 查無結果或失敗回傳空字串且不回報錯誤，呼叫端以無圖呈現。
func (s *Service) ResolveImage(ctx context.Context, query string) string {
	if common.IsSentinel(query) {
		return ""
	}

	s.mu.RLock()
	url, exists := s.memo[query]
	s.mu.RUnlock()
	if exists {
		common.LogCacheHit("image", query)
		return url
	}

	url = s.search(ctx, query)

	s.mu.Lock()
	s.memo[query] = url
	s.mu.Unlock()

	return url
}

// search 發出單次 Unsplash 搜尋
func (s *Service) search(ctx context.Context, query string) string {
	if s.config.AccessKey == "" {
		return ""
	}

	var result searchResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":          query,
			"per_page":       "1",
			"orientation":    "landscape",
			"content_filter": "high",
		}).
		SetHeader("Authorization", "Client-ID "+s.config.AccessKey).
		SetResult(&result).
		Get(s.config.BaseURL + "/search/photos")
	if err != nil {
		common.LogWarn("圖片搜尋失敗",
			zap.String("query", query),
			zap.Error(err),
		)
		return ""
	}
	if resp.IsError() {
		common.LogWarn("圖片搜尋端點回應錯誤",
			zap.String("query", query),
			zap.Int("status", resp.StatusCode()),
		)
		return ""
	}

	if len(result.Results) == 0 {
		common.LogInfo("圖片搜尋無結果",
			zap.String("query", query),
		)
		return ""
	}

	return result.Results[0].URLs.Regular
}
