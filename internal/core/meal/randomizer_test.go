package meal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-randomizer/internal/core/place"
	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"
)

type fakeSuggester struct {
	mu        sync.Mutex
	items     map[common.Slot]string
	slotItem  string
	err       error
	calls     int
	slotCalls int
	lastShop  string
	block     chan struct{}
}

func (f *fakeSuggester) Suggest(ctx context.Context, shopName string, p SuggestParams) (map[common.Slot]string, error) {
	f.mu.Lock()
	f.calls++
	f.lastShop = shopName
	block := f.block
	f.block = nil
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}

	result := make(map[common.Slot]string)
	for _, slot := range p.Selection.Selected() {
		result[slot] = f.items[slot]
	}
	return result, nil
}

func (f *fakeSuggester) SuggestSlot(ctx context.Context, shopName string, slot common.Slot, p SuggestParams) (string, error) {
	f.mu.Lock()
	f.slotCalls++
	f.lastShop = shopName
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	return f.slotItem, nil
}

type fakeResolver struct {
	mu      sync.Mutex
	urls    map[string]string
	queries []string
}

func (f *fakeResolver) ResolveImage(ctx context.Context, query string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.urls[query]
}

func fastConfig() *config.RandomizerConfig {
	return &config.RandomizerConfig{
		TickInterval: time.Millisecond,
		TickCount:    2,
		RerollDelay:  time.Millisecond,
	}
}

func testSession(t *testing.T) *Session {
	t.Helper()
	manager := NewManager(&config.SessionConfig{
		TTL:             time.Hour,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(manager.Close)
	return manager.Create()
}

func bangkokPlaces() []place.Place {
	return []place.Place{
		{ID: 1, Name: "Som Tam Nua"},
		{ID: 2, Name: "Khao Gaeng Corner"},
	}
}

func TestRandomizeFullSet(t *testing.T) {
	suggester := &fakeSuggester{items: map[common.Slot]string{
		common.SlotFood:  "Pad Krapow",
		common.SlotDrink: "Thai Milk Tea",
	}}
	resolver := &fakeResolver{urls: map[string]string{
		"Pad Krapow":    "https://img/food",
		"Thai Milk Tea": "https://img/drink",
	}}

	r := NewRandomizer(fastConfig(), suggester, resolver)
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())
	sess.ToggleCategory(common.SlotDrink) // food is on by default
	_, ver := sess.MealSnapshot()
	sess.SetNutrition(&common.NutritionReport{Calories: 500}, ver)

	result, err := r.Randomize(context.Background(), sess)
	require.NoError(t, err)

	require.NotNil(t, result.Shop)
	assert.Equal(t, "Som Tam Nua", *result.Shop)
	require.NotNil(t, result.Food.Name)
	assert.Equal(t, "Pad Krapow", *result.Food.Name)
	require.NotNil(t, result.Food.ImageURL)
	assert.Equal(t, "https://img/food", *result.Food.ImageURL)
	require.NotNil(t, result.Drink.Name)
	assert.Equal(t, "Thai Milk Tea", *result.Drink.Name)

	// Dessert was not selected and stays undecided
	assert.Nil(t, result.Dessert.Name)

	state := sess.Snapshot()
	assert.Equal(t, result.Food, state.Meal.Food)
	assert.False(t, state.Spinning.Shop)
	assert.False(t, state.Spinning.Food)
	// Any new spin invalidates the previous analysis
	assert.Nil(t, state.Nutrition)
	assert.Equal(t, 1, suggester.calls)
}

func TestRandomizeWithoutPlaces(t *testing.T) {
	r := NewRandomizer(fastConfig(), &fakeSuggester{}, &fakeResolver{})
	sess := testSession(t)

	_, err := r.Randomize(context.Background(), sess)
	assert.ErrorIs(t, err, common.ErrNoPlaces)
}

func TestRandomizeEmptySelectionSkipsItems(t *testing.T) {
	suggester := &fakeSuggester{}
	r := NewRandomizer(fastConfig(), suggester, &fakeResolver{})
	r.randIntN = func(n int) int { return 1 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())
	sess.ToggleCategory(common.SlotFood) // switch the default category off

	result, err := r.Randomize(context.Background(), sess)
	require.NoError(t, err)

	// The shop is still drawn, the item slots stay untouched
	require.NotNil(t, result.Shop)
	assert.Equal(t, "Khao Gaeng Corner", *result.Shop)
	assert.Nil(t, result.Food.Name)
	assert.Nil(t, result.Drink.Name)
	assert.Nil(t, result.Dessert.Name)
}

func TestRandomizeFailureSettlesSentinels(t *testing.T) {
	suggester := &fakeSuggester{err: errors.New("boom")}
	r := NewRandomizer(fastConfig(), suggester, &fakeResolver{})
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())
	sess.ToggleCategory(common.SlotDrink)

	// Dessert keeps its previous value across a failed spin
	prev := "Mango Sticky Rice"
	sess.mu.Lock()
	sess.meal.Dessert.Name = &prev
	sess.mu.Unlock()

	_, err := r.Randomize(context.Background(), sess)
	require.Error(t, err)

	state := sess.Snapshot()
	require.NotNil(t, state.Meal.Shop)
	assert.Equal(t, common.ShopError, *state.Meal.Shop)
	require.NotNil(t, state.Meal.Food.Name)
	assert.Equal(t, common.ItemError, *state.Meal.Food.Name)
	require.NotNil(t, state.Meal.Drink.Name)
	assert.Equal(t, common.ItemError, *state.Meal.Drink.Name)
	require.NotNil(t, state.Meal.Dessert.Name)
	assert.Equal(t, prev, *state.Meal.Dessert.Name)
	assert.False(t, state.Spinning.Shop)
}

func TestRandomizeSkipsImagesForSentinels(t *testing.T) {
	suggester := &fakeSuggester{items: map[common.Slot]string{
		common.SlotFood:  "Pad Thai",
		common.SlotDrink: common.ItemNA,
	}}
	resolver := &fakeResolver{urls: map[string]string{"Pad Thai": "https://img/pt"}}

	r := NewRandomizer(fastConfig(), suggester, resolver)
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())
	sess.ToggleCategory(common.SlotDrink)

	result, err := r.Randomize(context.Background(), sess)
	require.NoError(t, err)

	require.NotNil(t, result.Drink.Name)
	assert.Equal(t, common.ItemNA, *result.Drink.Name)
	assert.Nil(t, result.Drink.ImageURL)
	assert.Equal(t, []string{"Pad Thai"}, resolver.queries)
}

func TestRerollSingleSlot(t *testing.T) {
	suggester := &fakeSuggester{
		items:    map[common.Slot]string{common.SlotFood: "Pad Krapow"},
		slotItem: "Khao Soi",
	}
	resolver := &fakeResolver{urls: map[string]string{
		"Pad Krapow": "https://img/a",
		"Khao Soi":   "https://img/b",
	}}

	r := NewRandomizer(fastConfig(), suggester, resolver)
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())

	_, err := r.Randomize(context.Background(), sess)
	require.NoError(t, err)
	_, ver := sess.MealSnapshot()
	sess.SetNutrition(&common.NutritionReport{Calories: 700}, ver)

	result, err := r.Reroll(context.Background(), sess, common.SlotFood)
	require.NoError(t, err)

	require.NotNil(t, result.Food.Name)
	assert.Equal(t, "Khao Soi", *result.Food.Name)
	require.NotNil(t, result.Food.ImageURL)
	assert.Equal(t, "https://img/b", *result.Food.ImageURL)
	// The shop is kept across a single-slot reroll
	require.NotNil(t, result.Shop)
	assert.Equal(t, "Som Tam Nua", *result.Shop)
	assert.Equal(t, "Som Tam Nua", suggester.lastShop)
	assert.Equal(t, 1, suggester.slotCalls)

	state := sess.Snapshot()
	assert.Nil(t, state.Nutrition)
	assert.False(t, state.Spinning.Food)
}

func TestRerollWithoutShopRunsFullSpin(t *testing.T) {
	suggester := &fakeSuggester{items: map[common.Slot]string{common.SlotFood: "Pad Thai"}}
	r := NewRandomizer(fastConfig(), suggester, &fakeResolver{})
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())

	result, err := r.Reroll(context.Background(), sess, common.SlotFood)
	require.NoError(t, err)

	// No settled shop yet, so the reroll escalates to a full spin
	assert.Equal(t, 1, suggester.calls)
	assert.Equal(t, 0, suggester.slotCalls)
	require.NotNil(t, result.Shop)
	assert.Equal(t, "Som Tam Nua", *result.Shop)
}

func TestRerollFailureSettlesSlot(t *testing.T) {
	suggester := &fakeSuggester{items: map[common.Slot]string{common.SlotFood: "Pad Thai"}}
	r := NewRandomizer(fastConfig(), suggester, &fakeResolver{})
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())

	_, err := r.Randomize(context.Background(), sess)
	require.NoError(t, err)

	suggester.err = errors.New("boom")
	_, err = r.Reroll(context.Background(), sess, common.SlotFood)
	require.Error(t, err)

	state := sess.Snapshot()
	require.NotNil(t, state.Meal.Food.Name)
	assert.Equal(t, common.ItemError, *state.Meal.Food.Name)
	assert.False(t, state.Spinning.Food)
	// The shop survives the failed reroll
	require.NotNil(t, state.Meal.Shop)
	assert.Equal(t, "Som Tam Nua", *state.Meal.Shop)
}

func TestStaleSpinIsDiscarded(t *testing.T) {
	block := make(chan struct{})
	suggester := &fakeSuggester{
		items: map[common.Slot]string{common.SlotFood: "Old Dish"},
		block: block,
	}
	r := NewRandomizer(fastConfig(), suggester, &fakeResolver{})
	r.randIntN = func(n int) int { return 0 }

	sess := testSession(t)
	sess.SetPlaces(bangkokPlaces())

	done := make(chan common.MealSet)
	go func() {
		result, err := r.Randomize(context.Background(), sess)
		assert.NoError(t, err)
		done <- result
	}()

	// Wait until the first spin has reached the suggester and is blocked
	require.Eventually(t, func() bool {
		suggester.mu.Lock()
		defer suggester.mu.Unlock()
		return suggester.calls == 1
	}, time.Second, time.Millisecond)

	// A second spin supersedes the first one
	suggester.items = map[common.Slot]string{common.SlotFood: "New Dish"}
	_, err := r.Randomize(context.Background(), sess)
	require.NoError(t, err)

	// Unblock the stale spin and let it try to publish
	close(block)
	<-done

	state := sess.Snapshot()
	require.NotNil(t, state.Meal.Food.Name)
	assert.Equal(t, "New Dish", *state.Meal.Food.Name)
	assert.False(t, state.Spinning.Food)
}
