package randomizer

import (
	"net/http"

	"meal-randomizer/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// favoriteRequest 收藏切換請求
type favoriteRequest struct {
	Category string `json:"category" binding:"required"`
	Name     string `json:"name" binding:"required"`
	ImageURL string `json:"image_url"`
}

// ToggleFavorite 收藏或取消收藏
func (h *Handler) ToggleFavorite(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("category and name are required"))
		return
	}

	slot, valid := common.ParseItemSlot(req.Category)
	if !valid {
		respondError(c, common.NewValidationError("unknown category: "+req.Category))
		return
	}
	if common.IsSentinel(req.Name) {
		respondError(c, common.NewValidationError("cannot favorite a placeholder item"))
		return
	}

	favorites := sess.ToggleFavorite(slot, req.Name, req.ImageURL)
	c.JSON(http.StatusOK, gin.H{
		"favorites": favorites,
	})
}

// reviewRequest 收藏評分請求
type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// UpdateReview 更新收藏的評分與評論
func (h *Handler) UpdateReview(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("invalid review payload"))
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		respondError(c, common.NewValidationError("rating must be between 0 and 5"))
		return
	}

	if !sess.UpdateReview(c.Param("fid"), req.Rating, req.Comment) {
		respondError(c, common.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"favorites": sess.Snapshot().Favorites,
	})
}

// exclusionRequest 排除品項請求
type exclusionRequest struct {
	Name string `json:"name" binding:"required"`
}

// BanItem 將品項加入排除清單
func (h *Handler) BanItem(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req exclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("name is required"))
		return
	}

	if !sess.BanItem(req.Name) {
		respondError(c, common.NewValidationError("item cannot be excluded"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exclusions": sess.Snapshot().Exclusions,
	})
}

// ClearExclusions 清空排除清單
func (h *Handler) ClearExclusions(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	sess.ClearExclusions()
	c.JSON(http.StatusOK, gin.H{
		"exclusions": []string{},
	})
}
