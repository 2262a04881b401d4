package meal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-randomizer/internal/core/ai/gemini"
	"meal-randomizer/internal/core/ai/service"
	"meal-randomizer/internal/infrastructure/config"
	"meal-randomizer/internal/pkg/common"
)

// geminiStub 模擬生成端點並記錄收到的 prompt
type geminiStub struct {
	server  *httptest.Server
	calls   int
	prompts []string
	reply   string
}

func newGeminiStub(t *testing.T, reply string) *geminiStub {
	t.Helper()
	stub := &geminiStub{reply: reply}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls++
		w.Header().Set("Content-Type", "application/json")

		var req gemini.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		stub.prompts = append(stub.prompts, req.Contents[0].Parts[0].Text)

		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, mustJSONString(stub.reply))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func mustJSONString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (g *geminiStub) aiService() *service.Service {
	cfg := &config.Config{}
	gateway := gemini.NewClient([]string{"test-key"}, "gemini-2.0-flash", g.server.URL, 5*time.Second)
	return service.NewService(cfg, gateway, nil)
}

func TestSuggestFullSet(t *testing.T) {
	stub := newGeminiStub(t, "```json\n{\"food\": \"Pad Krapow Moo\", \"drink\": 42, \"extra\": \"ignored\"}\n```")
	svc := NewSuggestionService(stub.aiService())

	params := SuggestParams{
		Profile: common.UserProfile{
			Scores:     map[string]int{"q_spicy": 5},
			PriceRange: common.PriceRange{Min: 80, Max: 250},
		},
		Allergy:    "peanuts",
		Exclusions: []string{"Pad Thai"},
		Selection:  common.CategorySelection{Food: true, Drink: true},
	}

	items, err := svc.Suggest(context.Background(), "Som Tam Nua", params)
	require.NoError(t, err)

	// Fenced output is unwrapped and non-string values are coerced
	assert.Equal(t, "Pad Krapow Moo", items[common.SlotFood])
	assert.Equal(t, "42", items[common.SlotDrink])
	// Only the selected categories make it into the result
	assert.Len(t, items, 2)

	require.Len(t, stub.prompts, 1)
	prompt := stub.prompts[0]
	assert.Contains(t, prompt, `"Som Tam Nua"`)
	assert.Contains(t, prompt, "80 - 250 THB")
	assert.Contains(t, prompt, "Spicy(5/5)")
	assert.Contains(t, prompt, "Veg(3/5)")
	assert.Contains(t, prompt, "peanuts")
	assert.Contains(t, prompt, "Pad Thai")
	assert.Contains(t, prompt, "SessionToken:")
}

func TestSuggestEmptySelection(t *testing.T) {
	stub := newGeminiStub(t, `{}`)
	svc := NewSuggestionService(stub.aiService())

	items, err := svc.Suggest(context.Background(), "Som Tam Nua", SuggestParams{})
	require.NoError(t, err)

	// Nothing selected means an empty result and zero upstream calls
	assert.Empty(t, items)
	assert.Equal(t, 0, stub.calls)
}

func TestSuggestMissingKeyBecomesNA(t *testing.T) {
	stub := newGeminiStub(t, `{"food": "Khao Pad"}`)
	svc := NewSuggestionService(stub.aiService())

	items, err := svc.Suggest(context.Background(), "Cafe Now", SuggestParams{
		Selection: common.CategorySelection{Food: true, Dessert: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "Khao Pad", items[common.SlotFood])
	assert.Equal(t, common.ItemNA, items[common.SlotDessert])
}

func TestSuggestRepairsUnquotedKeys(t *testing.T) {
	stub := newGeminiStub(t, `{food: "Pad See Ew"}`)
	svc := NewSuggestionService(stub.aiService())

	items, err := svc.Suggest(context.Background(), "Noodle Bar", SuggestParams{
		Selection: common.CategorySelection{Food: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pad See Ew", items[common.SlotFood])
}

func TestSuggestMalformedResponse(t *testing.T) {
	stub := newGeminiStub(t, `sorry, I cannot help with that`)
	svc := NewSuggestionService(stub.aiService())

	_, err := svc.Suggest(context.Background(), "Som Tam Nua", SuggestParams{
		Selection: common.CategorySelection{Food: true},
	})
	assert.Error(t, err)
}

func TestSuggestSlot(t *testing.T) {
	stub := newGeminiStub(t, `{"drink": "Cha Yen"}`)
	svc := NewSuggestionService(stub.aiService())

	name, err := svc.SuggestSlot(context.Background(), "Som Tam Nua", common.SlotDrink, SuggestParams{})
	require.NoError(t, err)
	assert.Equal(t, "Cha Yen", name)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], `single key: "drink"`)
}

func TestSuggestSlotNullValue(t *testing.T) {
	stub := newGeminiStub(t, `{"dessert": null}`)
	svc := NewSuggestionService(stub.aiService())

	name, err := svc.SuggestSlot(context.Background(), "Noodle Bar", common.SlotDessert, SuggestParams{})
	require.NoError(t, err)
	assert.Equal(t, common.ItemNA, name)
}
