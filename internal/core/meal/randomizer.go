package meal

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"

	"go.uber.org/zap"
)

// Suggester 菜單推薦介面
type Suggester interface {
	Suggest(ctx context.Context, shopName string, p SuggestParams) (map[common.Slot]string, error)
	SuggestSlot(ctx context.Context, shopName string, slot common.Slot, p SuggestParams) (string, error)
}

// ImageResolver 圖片解析介面
type ImageResolver interface {
	ResolveImage(ctx context.Context, query string) string
}

// Randomizer 轉盤協調器。
// 一次 Randomize 分三階段：過渡抖動、權威抽選、圖片補齊。
// 過渡抖動只改顯示，權威抽選前一定先結束抖動；
// 發佈結果時比對會話版本，新一輪已開始就整包丟棄。
type Randomizer struct {
	config    *config.RandomizerConfig
	suggester Suggester
	images    ImageResolver

	// 測試可替換的亂數來源
	randIntN func(n int) int
}

// NewRandomizer 創建轉盤協調器
func NewRandomizer(cfg *config.RandomizerConfig, suggester Suggester, images ImageResolver) *Randomizer {
	return &Randomizer{
		config:    cfg,
		suggester: suggester,
		images:    images,
		randIntN:  rand.Intn,
	}
}

// Randomize 執行一次完整隨機：抽店家、抽整組菜單、補圖片。
// 尚未載入鄰近店家時回報 ErrNoPlaces。
func (r *Randomizer) Randomize(ctx context.Context, sess *Session) (common.MealSet, error) {
	sess.mu.Lock()
	if len(sess.places) == 0 {
		sess.mu.Unlock()
		return common.MealSet{}, common.ErrNoPlaces
	}

	sess.version++
	version := sess.version
	selection := sess.selection
	params := sess.suggestParamsLocked()
	places := sess.places

	// 勾選的欄位與店家清空待定，未勾選的保留前值
	sess.meal.Shop = nil
	for _, slot := range selection.Selected() {
		*sess.meal.Slot(slot) = common.SlotValue{}
	}
	sess.nutrition = nil

	sess.spinning.Clear()
	sess.spinning.Set(common.SlotShop, true)
	for _, slot := range selection.Selected() {
		sess.spinning.Set(slot, true)
	}
	sess.mu.Unlock()

	// 過渡抖動：每個 tick 隨機換一家店的名字當過場顯示
	pending := common.ItemPending
	for i := 0; i < r.config.TickCount; i++ {
		select {
		case <-time.After(r.config.TickInterval):
		case <-ctx.Done():
			r.settleFailure(sess, version, selection)
			return common.MealSet{}, ctx.Err()
		}

		tempShop := places[r.randIntN(len(places))].Name
		sess.mu.Lock()
		if sess.version != version {
			sess.mu.Unlock()
			return common.MealSet{}, nil
		}
		sess.meal.Shop = &tempShop
		for _, slot := range selection.Selected() {
			sess.meal.Slot(slot).Name = &pending
		}
		sess.mu.Unlock()
	}

	// 權威抽選：轉盤結束後重抽一次，過場顯示不影響結果
	finalShop := places[r.randIntN(len(places))]

	items, err := r.suggester.Suggest(ctx, finalShop.Name, params)
	if err != nil {
		common.LogError("整組隨機失敗",
			zap.String("session_id", sess.ID),
			zap.String("shop", finalShop.Name),
			zap.Error(err),
		)
		r.settleFailure(sess, version, selection)
		return common.MealSet{}, err
	}

	// 圖片補齊：各欄位平行查詢，哨兵值不查
	imageURLs := r.resolveImages(ctx, items)

	meal := common.MealSet{Shop: &finalShop.Name}
	for _, slot := range selection.Selected() {
		name := items[slot]
		if name == "" {
			name = common.ItemNA
		}
		value := common.SlotValue{Name: &name}
		if url := imageURLs[slot]; url != "" {
			value.ImageURL = &url
		}
		*meal.Slot(slot) = value
	}

	published := r.publish(sess, version, func() {
		sess.meal.Shop = meal.Shop
		for _, slot := range selection.Selected() {
			*sess.meal.Slot(slot) = *meal.Slot(slot)
		}
	})
	if !published {
		common.LogDebug("隨機結果已過期，丟棄",
			zap.String("session_id", sess.ID),
			zap.Uint64("version", version),
		)
	}

	return meal, nil
}

// Reroll 重抽單一欄位；店家維持不變。
// 店家尚未定案時改走完整隨機。
func (r *Randomizer) Reroll(ctx context.Context, sess *Session, slot common.Slot) (common.MealSet, error) {
	sess.mu.Lock()
	noShop := sess.meal.Shop == nil || common.IsSentinel(*sess.meal.Shop)
	if noShop {
		sess.mu.Unlock()
		return r.Randomize(ctx, sess)
	}

	sess.version++
	version := sess.version
	shop := *sess.meal.Shop
	params := sess.suggestParamsLocked()

	pending := common.ItemPending
	sess.meal.Slot(slot).Name = &pending
	sess.meal.Slot(slot).ImageURL = nil
	sess.nutrition = nil
	sess.spinning.Set(slot, true)
	sess.mu.Unlock()

	// 重抽前停頓一拍，讓轉盤狀態可被觀察到
	select {
	case <-time.After(r.config.RerollDelay):
	case <-ctx.Done():
		r.settleSlotFailure(sess, version, slot)
		return common.MealSet{}, ctx.Err()
	}

	name, err := r.suggester.SuggestSlot(ctx, shop, slot, params)
	if err != nil {
		common.LogError("單欄重抽失敗",
			zap.String("session_id", sess.ID),
			zap.String("slot", string(slot)),
			zap.Error(err),
		)
		r.settleSlotFailure(sess, version, slot)
		return common.MealSet{}, err
	}
	if name == "" {
		name = common.ItemNA
	}

	url := r.images.ResolveImage(ctx, name)

	value := common.SlotValue{Name: &name}
	if url != "" {
		value.ImageURL = &url
	}

	r.publish(sess, version, func() {
		*sess.meal.Slot(slot) = value
	})

	sess.mu.RLock()
	meal := sess.meal
	sess.mu.RUnlock()
	return meal, nil
}

// resolveImages 平行解析各欄位的圖片
func (r *Randomizer) resolveImages(ctx context.Context, items map[common.Slot]string) map[common.Slot]string {
	var mu sync.Mutex
	urls := make(map[common.Slot]string, len(items))

	var wg sync.WaitGroup
	for slot, name := range items {
		if common.IsSentinel(name) {
			continue
		}
		wg.Add(1)
		go func(slot common.Slot, name string) {
			defer wg.Done()
			url := r.images.ResolveImage(ctx, name)
			mu.Lock()
			urls[slot] = url
			mu.Unlock()
		}(slot, name)
	}
	wg.Wait()

	return urls
}

// publish 版本一致時套用變更並結束轉盤狀態；回傳是否套用
func (r *Randomizer) publish(sess *Session, version uint64, apply func()) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.version != version {
		return false
	}
	apply()
	sess.spinning.Clear()
	return true
}

// settleFailure 整組失敗：勾選的欄位與店家填哨兵值
func (r *Randomizer) settleFailure(sess *Session, version uint64, selection common.CategorySelection) {
	shopErr := common.ShopError
	itemErr := common.ItemError
	r.publish(sess, version, func() {
		sess.meal.Shop = &shopErr
		for _, slot := range selection.Selected() {
			sess.meal.Slot(slot).Name = &itemErr
			sess.meal.Slot(slot).ImageURL = nil
		}
	})
}

// settleSlotFailure 單欄失敗：該欄填哨兵值
func (r *Randomizer) settleSlotFailure(sess *Session, version uint64, slot common.Slot) {
	itemErr := common.ItemError
	r.publish(sess, version, func() {
		sess.meal.Slot(slot).Name = &itemErr
		sess.meal.Slot(slot).ImageURL = nil
	})
}
