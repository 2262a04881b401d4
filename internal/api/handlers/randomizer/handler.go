package randomizer

import (
	"errors"
	"net/http"

	"meal-randomizer/internal/core/meal"
	"meal-randomizer/internal/core/place"
	"meal-randomizer/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// Handler 隨機餐點相關端點
type Handler struct {
	sessions   *meal.Manager
	randomizer *meal.Randomizer
	places     *place.Service
	nutrition  *meal.NutritionService
}

// NewHandler 創建處理器
func NewHandler(sessions *meal.Manager, randomizer *meal.Randomizer, places *place.Service, nutrition *meal.NutritionService) *Handler {
	return &Handler{
		sessions:   sessions,
		randomizer: randomizer,
		places:     places,
		nutrition:  nutrition,
	}
}

// respondError 依錯誤型別決定狀態碼
func respondError(c *gin.Context, err error) {
	var customErr *common.CustomError
	if errors.As(err, &customErr) {
		c.JSON(customErr.Status, gin.H{
			"error": customErr.Message,
			"code":  customErr.Code,
		})
		return
	}
	if common.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  common.ErrCodeInvalidRequest,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": err.Error(),
		"code":  common.ErrCodeInternalError,
	})
}

// session 從路徑參數取得會話
func (h *Handler) session(c *gin.Context) (*meal.Session, bool) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

// CreateSession 建立新會話
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.sessions.Create()
	c.JSON(http.StatusCreated, sess.Snapshot())
}

// GetState 查詢會話狀態
func (h *Handler) GetState(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// profileRequest 偏好更新請求
type profileRequest struct {
	Scores     map[string]int    `json:"scores"`
	PriceRange common.PriceRange `json:"price_range"`
	DistanceKM float64           `json:"distance"`
	Allergy    string            `json:"allergy"`
}

// SetProfile 更新使用者偏好
func (h *Handler) SetProfile(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("invalid profile payload"))
		return
	}

	sess.SetProfile(common.UserProfile{
		Scores:     req.Scores,
		PriceRange: req.PriceRange.Normalized(),
		DistanceKM: req.DistanceKM,
	}, req.Allergy)

	c.JSON(http.StatusOK, sess.Snapshot())
}

// ToggleCategory 切換類別開關
func (h *Handler) ToggleCategory(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	slot, valid := common.ParseItemSlot(c.Param("slot"))
	if !valid {
		respondError(c, common.NewValidationError("unknown category: "+c.Param("slot")))
		return
	}

	selection := sess.ToggleCategory(slot)
	c.JSON(http.StatusOK, gin.H{
		"selection": selection,
	})
}

// nearbyRequest 鄰近搜尋請求
type nearbyRequest struct {
	Lat float64 `json:"lat" binding:"required"`
	Lon float64 `json:"lon" binding:"required"`
}

// FindNearby 搜尋並載入鄰近店家；半徑取自會話內的偏好
func (h *Handler) FindNearby(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req nearbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("lat and lon are required"))
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		respondError(c, common.NewValidationError("coordinates out of range"))
		return
	}

	radius := float64(sess.Snapshot().Profile.RadiusMeters())

	// 搜尋失敗時回傳空清單；候選池空掉由前端以空狀態呈現
	places := h.places.FindNearby(c.Request.Context(), req.Lat, req.Lon, radius)
	sess.SetPlaces(places)
	c.JSON(http.StatusOK, gin.H{
		"places": places,
		"count":  len(places),
	})
}

// Randomize 執行完整隨機
func (h *Handler) Randomize(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	result, err := h.randomizer.Randomize(c.Request.Context(), sess)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meal": result,
	})
}

// Reroll 重抽單一類別
func (h *Handler) Reroll(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	slot, valid := common.ParseItemSlot(c.Param("slot"))
	if !valid {
		respondError(c, common.NewValidationError("unknown category: "+c.Param("slot")))
		return
	}

	result, err := h.randomizer.Reroll(c.Request.Context(), sess, slot)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meal": result,
	})
}

// Analyze 對目前的結果集做營養分析
func (h *Handler) Analyze(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	mealSet, version := sess.MealSnapshot()

	report, err := h.nutrition.Analyze(c.Request.Context(), mealSet)
	if err != nil {
		respondError(c, err)
		return
	}
	if report == nil {
		respondError(c, common.NewValidationError("nothing to analyze"))
		return
	}

	sess.SetNutrition(report, version)
	c.JSON(http.StatusOK, gin.H{
		"analysis": report,
	})
}
