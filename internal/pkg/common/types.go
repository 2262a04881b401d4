package common

import (
	"strings"
)

// Slot 一個可獨立隨機/重抽的欄位
type Slot string

const (
	SlotFood    Slot = "food"
	SlotDrink   Slot = "drink"
	SlotDessert Slot = "dessert"
	SlotShop    Slot = "shop"
)

// ItemSlots 三個菜單欄位（不含店家）
var ItemSlots = []Slot{SlotFood, SlotDrink, SlotDessert}

// ParseItemSlot 解析菜單欄位名稱
func ParseItemSlot(s string) (Slot, bool) {
	switch Slot(strings.ToLower(strings.TrimSpace(s))) {
	case SlotFood:
		return SlotFood, true
	case SlotDrink:
		return SlotDrink, true
	case SlotDessert:
		return SlotDessert, true
	default:
		return "", false
	}
}

// 保留字串哨兵值，與一般資料區分
const (
	// ItemNA 該店家不提供此類別
	ItemNA = "N/A"
	// ItemError 建議流程失敗時的欄位哨兵
	ItemError = "AI Error"
	// ShopError 店家抽選失敗時的哨兵
	ShopError = "Error"
	// ItemPending 轉盤尚未定案時的過渡顯示
	ItemPending = "Selecting..."
)

// IsSentinel 判斷是否為哨兵值（不可收藏、不可查圖）
func IsSentinel(name string) bool {
	return name == "" || name == ItemNA || name == ItemPending || strings.Contains(name, "Error")
}

// SlotValue 一個菜單欄位的內容：nil 表示尚未決定
type SlotValue struct {
	Name     *string `json:"name"`
	ImageURL *string `json:"image_url"`
}

// MealSet 一次隨機週期的結果集
type MealSet struct {
	Food    SlotValue `json:"food"`
	Drink   SlotValue `json:"drink"`
	Dessert SlotValue `json:"dessert"`
	Shop    *string   `json:"shop"`
}

// Slot 取得指定欄位的指標
func (m *MealSet) Slot(s Slot) *SlotValue {
	switch s {
	case SlotFood:
		return &m.Food
	case SlotDrink:
		return &m.Drink
	case SlotDessert:
		return &m.Dessert
	default:
		return nil
	}
}

// SpinningState 每個欄位是否仍在轉盤狀態；僅供顯示，不代表 MealSet 內容
type SpinningState struct {
	Food    bool `json:"food"`
	Drink   bool `json:"drink"`
	Dessert bool `json:"dessert"`
	Shop    bool `json:"shop"`
}

// Set 設定指定欄位的轉盤旗標
func (s *SpinningState) Set(slot Slot, v bool) {
	switch slot {
	case SlotFood:
		s.Food = v
	case SlotDrink:
		s.Drink = v
	case SlotDessert:
		s.Dessert = v
	case SlotShop:
		s.Shop = v
	}
}

// Clear 清除所有轉盤旗標
func (s *SpinningState) Clear() {
	*s = SpinningState{}
}

// CategorySelection 三個類別的獨立開關；全部關閉也是合法狀態
type CategorySelection struct {
	Food    bool `json:"food"`
	Drink   bool `json:"drink"`
	Dessert bool `json:"dessert"`
}

// IsSelected 判斷類別是否被選取
func (c CategorySelection) IsSelected(slot Slot) bool {
	switch slot {
	case SlotFood:
		return c.Food
	case SlotDrink:
		return c.Drink
	case SlotDessert:
		return c.Dessert
	default:
		return false
	}
}

// Selected 依固定順序回傳被選取的類別
func (c CategorySelection) Selected() []Slot {
	var out []Slot
	for _, s := range ItemSlots {
		if c.IsSelected(s) {
			out = append(out, s)
		}
	}
	return out
}

// Toggle 切換類別開關
func (c *CategorySelection) Toggle(slot Slot) {
	switch slot {
	case SlotFood:
		c.Food = !c.Food
	case SlotDrink:
		c.Drink = !c.Drink
	case SlotDessert:
		c.Dessert = !c.Dessert
	}
}

// 價格區間的絕對界限
const (
	PriceMin = 1
	PriceMax = 999
)

// PriceRange 每餐預算區間（泰銖）
type PriceRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Normalized 回傳夾在合法範圍內且 min < max 的區間；零值給預設 50-300
func (p PriceRange) Normalized() PriceRange {
	if p.Min == 0 && p.Max == 0 {
		return PriceRange{Min: 50, Max: 300}
	}
	if p.Min < PriceMin {
		p.Min = PriceMin
	}
	if p.Max > PriceMax {
		p.Max = PriceMax
	}
	if p.Max < PriceMin+1 {
		p.Max = PriceMin + 1
	}
	if p.Min >= p.Max {
		p.Min = p.Max - 1
	}
	return p
}

// 偏好分數與搜尋半徑的界限
const (
	ScoreDefault = 3
	ScoreMin     = 1
	ScoreMax     = 5

	RadiusDefaultKM = 1.0
	RadiusMinKM     = 1.0
	RadiusMaxKM     = 10.0
)

// UserProfile 問卷收集的使用者偏好；由 UI 層於呼叫時傳入，核心不保存
type UserProfile struct {
	Scores     map[string]int `json:"scores"`
	PriceRange PriceRange     `json:"price_range"`
	DistanceKM float64        `json:"distance"`
}

// Score 取得偏好分數，缺值給 3，並夾在 1-5
func (p UserProfile) Score(key string) int {
	v, ok := p.Scores[key]
	if !ok {
		return ScoreDefault
	}
	if v < ScoreMin {
		return ScoreMin
	}
	if v > ScoreMax {
		return ScoreMax
	}
	return v
}

// RadiusMeters 搜尋半徑（公尺），夾在 1-10 公里
func (p UserProfile) RadiusMeters() int {
	km := p.DistanceKM
	if km == 0 {
		km = RadiusDefaultKM
	}
	if km < RadiusMinKM {
		km = RadiusMinKM
	}
	if km > RadiusMaxKM {
		km = RadiusMaxKM
	}
	return int(km * 1000)
}

// NutritionReport 營養分析結果；任何重抽都會使其失效
type NutritionReport struct {
	Calories  int    `json:"calories"`
	Comment   string `json:"comment"`
	HealthTip string `json:"health_tip"`
	Score     int    `json:"score"`
}

// Favorite 使用者收藏的一個欄位快照；生命週期獨立於 MealSet
type Favorite struct {
	ID       string `json:"id"`
	Category Slot   `json:"category"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
	Shop     string `json:"shop"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}
