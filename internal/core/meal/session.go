package meal

import (
	"sync"
	"time"

	"meal-randomizer/internal/core/place"
	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"

	"go.uber.org/zap"
)

// Session 單一使用者的隨機週期狀態。
// version 隨每次 Randomize / Reroll 遞增，舊週期的結果發佈時
// 比對不符即丟棄，保證畫面上只會出現最新一輪的定案。
type Session struct {
	ID string

	mu         sync.RWMutex
	version    uint64
	profile    common.UserProfile
	allergy    string
	selection  common.CategorySelection
	exclusions []string
	favorites  []common.Favorite
	meal       common.MealSet
	nutrition  *common.NutritionReport
	spinning   common.SpinningState
	places     []place.Place

	createdAt  time.Time
	lastAccess time.Time
}

// State 會話狀態快照，供查詢端點回傳
type State struct {
	ID         string                   `json:"id"`
	Profile    common.UserProfile       `json:"profile"`
	Selection  common.CategorySelection `json:"selection"`
	Exclusions []string                 `json:"exclusions"`
	Favorites  []common.Favorite        `json:"favorites"`
	Meal       common.MealSet           `json:"meal"`
	Nutrition  *common.NutritionReport  `json:"nutrition,omitempty"`
	Spinning   common.SpinningState     `json:"spinning"`
	PlaceCount int                      `json:"place_count"`
}

// Snapshot 取得目前狀態的一致快照
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exclusions := append([]string(nil), s.exclusions...)
	favorites := append([]common.Favorite(nil), s.favorites...)

	return State{
		ID:         s.ID,
		Profile:    s.profile,
		Selection:  s.selection,
		Exclusions: exclusions,
		Favorites:  favorites,
		Meal:       s.meal,
		Nutrition:  s.nutrition,
		Spinning:   s.spinning,
		PlaceCount: len(s.places),
	}
}

// SetProfile 更新使用者偏好
func (s *Session) SetProfile(profile common.UserProfile, allergy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.allergy = allergy
}

// ToggleCategory 切換類別開關
func (s *Session) ToggleCategory(slot common.Slot) common.CategorySelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Toggle(slot)
	return s.selection
}

// SetPlaces 更新鄰近店家清單
func (s *Session) SetPlaces(places []place.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places = places
}

// Places 取得鄰近店家清單
func (s *Session) Places() []place.Place {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]place.Place(nil), s.places...)
}

// Meal 取得目前結果集
func (s *Session) Meal() common.MealSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meal
}

// MealSnapshot 取得目前結果集與對應的版本號
func (s *Session) MealSnapshot() (common.MealSet, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meal, s.version
}

// SetNutrition 記錄營養分析結果。
// 版本不符表示分析期間又抽過一輪，報告對不上目前的菜單，直接丟棄。
func (s *Session) SetNutrition(report *common.NutritionReport, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.version {
		return
	}
	s.nutrition = report
}

// BanItem 將品項加入排除清單；哨兵值不可排除。
// 回傳是否實際加入。
func (s *Session) BanItem(name string) bool {
	if common.IsSentinel(name) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ex := range s.exclusions {
		if ex == name {
			return false
		}
	}
	s.exclusions = append(s.exclusions, name)
	return true
}

// ClearExclusions 清空排除清單
func (s *Session) ClearExclusions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusions = nil
}

// suggestParams 組出當下偏好的推薦參數；呼叫端需持有鎖
func (s *Session) suggestParamsLocked() SuggestParams {
	return SuggestParams{
		Profile:    s.profile,
		Allergy:    s.allergy,
		Exclusions: append([]string(nil), s.exclusions...),
		Selection:  s.selection,
	}
}

// ToggleFavorite 收藏或取消收藏一個品項；以名稱判斷重複。
// 哨兵值不可收藏。回傳收藏後的清單。
func (s *Session) ToggleFavorite(category common.Slot, name, imageURL string) []common.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()

	if common.IsSentinel(name) {
		return append([]common.Favorite(nil), s.favorites...)
	}

	for i, f := range s.favorites {
		if f.Name == name {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			return append([]common.Favorite(nil), s.favorites...)
		}
	}

	shop := ""
	if s.meal.Shop != nil && !common.IsSentinel(*s.meal.Shop) {
		shop = *s.meal.Shop
	}
	s.favorites = append(s.favorites, common.Favorite{
		ID:       common.GenerateUUID(),
		Category: category,
		Name:     name,
		ImageURL: imageURL,
		Shop:     shop,
	})
	return append([]common.Favorite(nil), s.favorites...)
}

// UpdateReview 更新收藏的評分與評論
func (s *Session) UpdateReview(id string, rating int, comment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.favorites {
		if s.favorites[i].ID == id {
			s.favorites[i].Rating = rating
			s.favorites[i].Comment = comment
			return true
		}
	}
	return false
}

// touch 更新存取時間
func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// Manager 會話註冊表；逾時未存取的會話由背景協程回收
type Manager struct {
	config *config.SessionConfig

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager 創建會話註冊表
func NewManager(cfg *config.SessionConfig) *Manager {
	m := &Manager{
		config:   cfg,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}

	go m.startCleanup()

	return m
}

// Create 建立新會話
func (m *Manager) Create() *Session {
	now := time.Now()
	sess := &Session{
		ID: common.GenerateUUID(),
		selection: common.CategorySelection{
			Food: true,
		},
		createdAt:  now,
		lastAccess: now,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	common.LogInfo("會話已建立",
		zap.String("session_id", sess.ID),
	)
	return sess
}

// Get 取得會話並更新存取時間
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists {
		return nil, common.ErrSessionNotFound
	}

	sess.touch()
	return sess, nil
}

// Count 目前會話數
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close 停止背景回收
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// startCleanup 啟動回收逾時會話的協程
func (m *Manager) startCleanup() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// cleanup 回收逾時會話
func (m *Manager) cleanup() {
	cutoff := time.Now().Add(-m.config.TTL)
	count := 0

	m.mu.Lock()
	for id, sess := range m.sessions {
		sess.mu.RLock()
		expired := sess.lastAccess.Before(cutoff)
		sess.mu.RUnlock()
		if expired {
			delete(m.sessions, id)
			count++
		}
	}
	m.mu.Unlock()

	if count > 0 {
		common.LogInfo("會話回收執行",
			zap.Int("回收數量", count),
		)
	}
}
