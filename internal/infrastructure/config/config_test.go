package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyPool(t *testing.T) {
	// Comma-separated keys are split and trimmed
	g := GeminiConfig{APIKeys: "key-a, key-b ,key-c"}
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, g.KeyPool())

	// Empty segments are dropped
	g = GeminiConfig{APIKeys: "key-a,,key-b,"}
	assert.Equal(t, []string{"key-a", "key-b"}, g.KeyPool())

	// A single key works without commas
	g = GeminiConfig{APIKeys: "solo-key"}
	assert.Equal(t, []string{"solo-key"}, g.KeyPool())

	// No keys at all yields a nil pool
	assert.Nil(t, GeminiConfig{}.KeyPool())
	assert.Nil(t, GeminiConfig{APIKeys: "   "}.KeyPool())
}

func TestValidateConfig(t *testing.T) {
	valid := &Config{
		Server: ServerConfig{Port: 8080},
		Cache: CacheConfig{
			Enabled:         true,
			Backend:         "memory",
			MaxSize:         100,
			TTL:             time.Hour,
			CleanupInterval: time.Minute,
		},
		Randomizer: RandomizerConfig{
			TickInterval: 100 * time.Millisecond,
			TickCount:    10,
		},
	}
	assert.NoError(t, validateConfig(valid))

	noPort := *valid
	noPort.Server.Port = 0
	assert.Error(t, validateConfig(&noPort))

	badBackend := *valid
	badBackend.Cache.Backend = "memcached"
	assert.Error(t, validateConfig(&badBackend))

	badTicks := *valid
	badTicks.Randomizer.TickCount = 0
	assert.Error(t, validateConfig(&badTicks))

	// Cache settings are not validated when the cache is off
	cacheOff := *valid
	cacheOff.Cache = CacheConfig{Enabled: false}
	assert.NoError(t, validateConfig(&cacheOff))
}
