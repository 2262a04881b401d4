package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-randomizer/internal/pkg/common"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func candidateResponse(text string) Response {
	return Response{
		Candidates: []Candidate{
			{Content: Content{Parts: []Part{{Text: text}}}},
		},
	}
}

func TestGenerateJSONSuccess(t *testing.T) {
	var gotKey string
	var gotBody Request

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(candidateResponse(`{"food":"Pad Thai"}`))
	})

	client := NewClient([]string{"key-1"}, "gemini-2.0-flash", server.URL, 5*time.Second)

	text, err := client.GenerateJSON(context.Background(), "suggest a menu")
	require.NoError(t, err)
	assert.Equal(t, `{"food":"Pad Thai"}`, text)
	assert.Equal(t, "key-1", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "suggest a menu", gotBody.Contents[0].Parts[0].Text)
	require.NotNil(t, gotBody.GenerationConfig)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMIMEType)
}

func TestGenerateTextOmitsGenerationConfig(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Nil(t, body.GenerationConfig)
		json.NewEncoder(w).Encode(candidateResponse("hello"))
	})

	client := NewClient([]string{"key-1"}, "gemini-2.0-flash", server.URL, 5*time.Second)

	text, err := client.GenerateText(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestKeyRotationOnFailure(t *testing.T) {
	var keysSeen []string

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		keysSeen = append(keysSeen, key)
		if key != "key-3" {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(Response{Error: &APIError{Code: 429, Message: "quota exceeded"}})
			return
		}
		json.NewEncoder(w).Encode(candidateResponse("ok"))
	})

	client := NewClient([]string{"key-1", "key-2", "key-3"}, "gemini-2.0-flash", server.URL, 5*time.Second)

	text, err := client.GenerateJSON(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	// Keys are tried in pool order until one succeeds
	assert.Equal(t, []string{"key-1", "key-2", "key-3"}, keysSeen)
}

func TestAllKeysExhausted(t *testing.T) {
	calls := 0
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})

	client := NewClient([]string{"key-1", "key-2"}, "gemini-2.0-flash", server.URL, 5*time.Second)

	_, err := client.GenerateJSON(context.Background(), "prompt")
	assert.ErrorIs(t, err, common.ErrAllKeysExhausted)
	assert.Equal(t, 2, calls)
}

func TestNoAPIKeys(t *testing.T) {
	client := NewClient(nil, "gemini-2.0-flash", "http://unused", 5*time.Second)

	_, err := client.GenerateJSON(context.Background(), "prompt")
	assert.ErrorIs(t, err, common.ErrNoAPIKeys)
}

func TestMissingCandidatesRotatesKey(t *testing.T) {
	var keysSeen []string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		keysSeen = append(keysSeen, key)
		if key == "key-1" {
			// 200 with an empty candidate list still counts as a failed attempt
			json.NewEncoder(w).Encode(Response{})
			return
		}
		json.NewEncoder(w).Encode(candidateResponse("recovered"))
	})

	client := NewClient([]string{"key-1", "key-2"}, "gemini-2.0-flash", server.URL, 5*time.Second)

	text, err := client.GenerateJSON(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, []string{"key-1", "key-2"}, keysSeen)
}
