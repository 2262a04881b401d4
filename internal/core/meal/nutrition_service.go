package meal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"meal-randomizer/internal/core/ai/service"
	"meal-randomizer/internal/pkg/common"

	"go.uber.org/zap"
)

// NutritionService 營養分析服務
type NutritionService struct {
	aiService *service.Service
}

// NewNutritionService 創建營養分析服務
func NewNutritionService(aiService *service.Service) *NutritionService {
	return &NutritionService{aiService: aiService}
}

// looseReport 寬鬆版中繼結構：calories / score 可能是數字或字串
type looseReport struct {
	Calories  json.Number `json:"calories"`
	Comment   string      `json:"comment"`
	HealthTip string      `json:"health_tip"`
	Score     json.Number `json:"score"`
}

// Analyze 對一組已定案的菜單做營養分析。
// 沒有任何可分析品項（全為哨兵值）時回傳 nil 報告與 nil 錯誤。
func (s *NutritionService) Analyze(ctx context.Context, meal common.MealSet) (*common.NutritionReport, error) {
	var items []string
	if name := meal.Food.Name; name != nil && !common.IsSentinel(*name) {
		items = append(items, "Main: "+*name)
	}
	if name := meal.Drink.Name; name != nil && !common.IsSentinel(*name) {
		items = append(items, "Drink: "+*name)
	}
	if name := meal.Dessert.Name; name != nil && !common.IsSentinel(*name) {
		items = append(items, "Dessert: "+*name)
	}

	if len(items) == 0 {
		return nil, nil
	}

	shop := "an unknown shop"
	if meal.Shop != nil && !common.IsSentinel(*meal.Shop) {
		shop = *meal.Shop
	}

	prompt := fmt.Sprintf(`Role: Thai Nutritionist.
Analyze this set from %s: %s.
Output JSON:
{
  "calories": integer (total kcal),
  "comment": "short witty thai comment",
  "health_tip": "short thai health tip",
  "score": integer (1-10)
}`, shop, strings.Join(items, ", "))

	resp, err := s.aiService.ProcessRequest(ctx, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("AI service error: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return nil, fmt.Errorf("empty AI response")
	}

	content := common.StripCodeFence(resp.Content)

	var lr looseReport
	if err := common.ParseJSON(content, &lr); err != nil {
		common.LogError("營養分析回應解析失敗",
			zap.Error(err),
			zap.Int("ai_response_length", len(content)),
		)
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	report := &common.NutritionReport{
		Comment:   lr.Comment,
		HealthTip: lr.HealthTip,
	}
	if v, err := lr.Calories.Int64(); err == nil {
		report.Calories = int(v)
	}
	if v, err := lr.Score.Int64(); err == nil {
		report.Score = int(v)
	}

	// 逐欄補值
	if report.Comment == "" {
		report.Comment = "No comment"
	}
	if report.HealthTip == "" {
		report.HealthTip = "No tip"
	}
	if report.Score < 1 {
		report.Score = 1
	}
	if report.Score > 10 {
		report.Score = 10
	}

	return report, nil
}
