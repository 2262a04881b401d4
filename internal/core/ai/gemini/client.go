package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"meal-randomizer/internal/pkg/common"
)

// Client Gemini 生成端點閘道。
// 持有固定順序的金鑰池，單次請求依序輪替，任一金鑰成功即回傳，
// 全部失敗才回報 ErrAllKeysExhausted。
type Client struct {
	httpClient *resty.Client
	keys       []string
	model      string
	baseURL    string
}

// Request Gemini generateContent 請求體
type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content 單輪對話內容
type Content struct {
	Parts []Part `json:"parts"`
}

// Part 內容片段
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig 生成參數
type GenerationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

// Response Gemini generateContent 回應體
type Response struct {
	Candidates []Candidate `json:"candidates"`
	Error      *APIError   `json:"error,omitempty"`
}

// Candidate 生成候選
type Candidate struct {
	Content Content `json:"content"`
}

// APIError 端點錯誤體
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewClient 建立 Gemini 閘道
func NewClient(keys []string, model, baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		keys:       keys,
		model:      model,
		baseURL:    baseURL,
	}
}

// KeyCount 金鑰池大小
func (c *Client) KeyCount() int {
	return len(c.keys)
}

// GenerateJSON 以 JSON 回應模式呼叫 generateContent
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, &GenerationConfig{ResponseMIMEType: "application/json"})
}

// GenerateText 以純文字模式呼叫 generateContent
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

// generate 依序嘗試金鑰池中每把金鑰，成功即回傳候選文字。
// 失敗原因包含：HTTP 非 2xx、回應缺少 candidates、候選文字為空。
func (c *Client) generate(ctx context.Context, prompt string, genCfg *GenerationConfig) (string, error) {
	if len(c.keys) == 0 {
		return "", common.ErrNoAPIKeys
	}

	body := Request{
		Contents:         []Content{{Parts: []Part{{Text: prompt}}}},
		GenerationConfig: genCfg,
	}

	var lastErr error
	for i, key := range c.keys {
		ordinal := fmt.Sprintf("%d/%d", i+1, len(c.keys))

		text, err := c.callOnce(ctx, key, body)
		if err == nil {
			common.LogInfo("Gemini 呼叫成功",
				zap.String("key", ordinal),
				zap.String("model", c.model),
			)
			return text, nil
		}

		lastErr = err
		common.LogWarn("Gemini 金鑰嘗試失敗，切換下一把",
			zap.String("key", ordinal),
			zap.Error(err),
		)

		// context 已取消就不再輪替
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	common.LogError("Gemini 金鑰池全數耗盡",
		zap.Int("key_count", len(c.keys)),
		zap.Error(lastErr),
	)
	return "", common.ErrAllKeysExhausted
}

// callOnce 以單一金鑰發出一次請求
func (c *Client) callOnce(ctx context.Context, key string, body Request) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	var result Response
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if resp.IsError() {
		if result.Error != nil {
			return "", fmt.Errorf("gemini API error %d: %s", result.Error.Code, result.Error.Message)
		}
		return "", fmt.Errorf("gemini API returned status %d", resp.StatusCode())
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response has no candidates")
	}

	text := result.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("gemini candidate text is empty")
	}
	return text, nil
}
