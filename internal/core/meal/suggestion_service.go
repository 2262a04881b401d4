package meal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"meal-randomizer/internal/core/ai/service"
	"meal-randomizer/internal/pkg/common"

	"go.uber.org/zap"
)

// SuggestParams 單次推薦的輸入集合
type SuggestParams struct {
	Profile    common.UserProfile
	Allergy    string
	Exclusions []string
	Selection  common.CategorySelection
}

// SuggestionService 菜單推薦服務
type SuggestionService struct {
	aiService *service.Service
}

// NewSuggestionService 創建菜單推薦服務
func NewSuggestionService(aiService *service.Service) *SuggestionService {
	return &SuggestionService{aiService: aiService}
}

// Suggest 針對指定店家推薦整組菜單。
// 未勾選任何類別時直接回傳空映射，不呼叫 AI。
// 回傳映射只含勾選的類別；店家不供應的類別值為 "N/A"。
func (s *SuggestionService) Suggest(ctx context.Context, shopName string, p SuggestParams) (map[common.Slot]string, error) {
	selected := p.Selection.Selected()
	if len(selected) == 0 {
		return map[common.Slot]string{}, nil
	}

	var requestedFields []string
	if p.Selection.IsSelected(common.SlotFood) {
		requestedFields = append(requestedFields, `"food": "Thai menu name"`)
	}
	if p.Selection.IsSelected(common.SlotDrink) {
		requestedFields = append(requestedFields, `"drink": "Beverage menu name"`)
	}
	if p.Selection.IsSelected(common.SlotDessert) {
		requestedFields = append(requestedFields, `"dessert": "Dessert menu name"`)
	}

	categories := make([]string, 0, len(selected))
	for _, slot := range selected {
		categories = append(categories, string(slot))
	}

	taskDescription := fmt.Sprintf(
		`Analyze the REAL restaurant "%s" in Thailand. Suggest items for [%s] that ACTUALLY exist on their menu.`,
		shopName, strings.Join(categories, ", "))
	outputFormat := fmt.Sprintf(
		`Return ONLY a JSON object with keys: %s. Values MUST be strings.`,
		strings.Join(requestedFields, ", "))

	prompt := s.buildPrompt(taskDescription, outputFormat, p)

	common.LogDebug("Suggest 組裝的 prompt", zap.String("prompt", prompt))

	raw, err := s.callJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// 只收勾選過的鍵，其他鍵一律丟棄
	result := make(map[common.Slot]string, len(selected))
	for _, slot := range selected {
		result[slot] = common.CoerceToString(raw[string(slot)])
	}
	return result, nil
}

// SuggestSlot 針對指定店家重抽單一類別
func (s *SuggestionService) SuggestSlot(ctx context.Context, shopName string, slot common.Slot, p SuggestParams) (string, error) {
	taskDescription := fmt.Sprintf(
		`Look up the menu for "%s". Suggest ONLY a recommended "%s" item.`,
		shopName, slot)
	outputFormat := fmt.Sprintf(
		`Return ONLY a JSON object with a single key: "%s". Value MUST be a string.`,
		slot)

	prompt := s.buildPrompt(taskDescription, outputFormat, p)

	raw, err := s.callJSON(ctx, prompt)
	if err != nil {
		return "", err
	}
	return common.CoerceToString(raw[string(slot)]), nil
}

// buildPrompt 組出推薦 prompt；附上唯一識別碼避免快取回傳舊菜單
func (s *SuggestionService) buildPrompt(taskDescription, outputFormat string, p SuggestParams) string {
	allergy := strings.TrimSpace(p.Allergy)
	if allergy == "" {
		allergy = "None"
	}

	price := p.Profile.PriceRange.Normalized()
	budgetText := fmt.Sprintf("%d - %d THB", price.Min, price.Max)

	prompt := fmt.Sprintf(`Context: You are a Thai local expert.
Task: %s

User Profile:
- Budget: %s (Allocate this budget across the SELECTED items only)
- Preferences: Spicy(%d/5), Veg(%d/5)
- Allergies: %s (STRICTLY AVOID)
- Exclusions: %s

%s
Constraint: If the shop type doesn't support a category (e.g. A coffee shop usually doesn't have Main Food), return "N/A" for that key. Do not return objects or arrays as values.`,
		taskDescription,
		budgetText,
		p.Profile.Score("q_spicy"),
		p.Profile.Score("q_veg_ratio"),
		allergy,
		common.StringSliceToString(p.Exclusions),
		outputFormat)

	uniqueToken := fmt.Sprintf("SessionToken:%d", time.Now().UnixNano())
	prompt += fmt.Sprintf("\nIgnore the identifier %s. It only exists to avoid caching. Never mention it in the output.", uniqueToken)

	return prompt
}

// callJSON 呼叫 AI 並將回應解析為寬鬆的鍵值映射
func (s *SuggestionService) callJSON(ctx context.Context, prompt string) (map[string]interface{}, error) {
	resp, err := s.aiService.ProcessRequest(ctx, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("AI service error: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return nil, fmt.Errorf("empty AI response")
	}

	// 模型偶爾回傳未加引號的鍵，解析前先修補
	content := common.QuoteJSONKeys(common.StripCodeFence(resp.Content))

	var raw map[string]interface{}
	if err := common.ParseJSON(content, &raw); err != nil {
		common.LogError("AI 回應解析失敗",
			zap.Error(err),
			zap.Int("ai_response_length", len(content)),
		)
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return raw, nil
}
