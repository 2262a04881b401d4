package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	fenced := "```json\n{\"food\": \"Pad Thai\"}\n```"
	assert.Equal(t, `{"food": "Pad Thai"}`, StripCodeFence(fenced))

	// Plain fences without a language tag
	assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))

	// Prose around the object is trimmed down to the outermost braces
	noisy := "Here is your menu: {\"drink\": \"Thai Tea\"} hope you enjoy"
	assert.Equal(t, `{"drink": "Thai Tea"}`, StripCodeFence(noisy))

	// Already-clean JSON passes through
	assert.Equal(t, `{"x":2}`, StripCodeFence(`{"x":2}`))
}

func TestCoerceToString(t *testing.T) {
	assert.Equal(t, "Pad Thai", CoerceToString("Pad Thai"))

	// Missing or empty values settle to the not-available sentinel
	assert.Equal(t, ItemNA, CoerceToString(nil))
	assert.Equal(t, ItemNA, CoerceToString(""))

	// Non-string scalars are stringified instead of dropped
	assert.Equal(t, "42", CoerceToString(json.Number("42")))
	assert.Equal(t, "12.5", CoerceToString(12.5))
	assert.Equal(t, "true", CoerceToString(true))

	// Objects are flattened to their JSON text
	got := CoerceToString(map[string]interface{}{"name": "Latte"})
	assert.JSONEq(t, `{"name":"Latte"}`, got)
}

func TestQuoteJSONKeys(t *testing.T) {
	assert.Equal(t, `{"food": "Pad Thai"}`, QuoteJSONKeys(`{food: "Pad Thai"}`))
	assert.Equal(t, `{"a": 1, "b": 2}`, QuoteJSONKeys(`{a: 1, b: 2}`))

	// Properly quoted input is untouched
	assert.Equal(t, `{"food": "Pad Thai"}`, QuoteJSONKeys(`{"food": "Pad Thai"}`))
}

func TestParseJSON(t *testing.T) {
	var out map[string]interface{}
	err := ParseJSON(`{"score": 4}`, &out)
	assert.NoError(t, err)
	assert.Equal(t, json.Number("4"), out["score"])

	err = ParseJSON(`{"score": 4} trailing`, &out)
	assert.Error(t, err)
}
