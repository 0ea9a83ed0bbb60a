package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTimeoutService(idle time.Duration) *StreamTimeoutService {
	return &StreamTimeoutService{
		idleLimit:    idle,
		lastActivity: make(map[string]time.Time),
	}
}

func TestStreamTimeoutExpired(t *testing.T) {
	s := newTestTimeoutService(time.Minute)

	s.Touch("fresh")
	s.lastActivity["stale"] = time.Now().Add(-2 * time.Minute)

	expired := s.expired()
	assert.Equal(t, []string{"stale"}, expired)

	// Expired sessions are removed from tracking.
	assert.Empty(t, s.expired())

	s.Remove("fresh")
	assert.Empty(t, s.lastActivity)
}

func TestStreamTimeoutTouchResetsClock(t *testing.T) {
	s := newTestTimeoutService(time.Minute)

	s.lastActivity["user"] = time.Now().Add(-2 * time.Minute)
	s.Touch("user")

	assert.Empty(t, s.expired())
}

func TestConfigGeminiASRModel(t *testing.T) {
	config := &Config{}
	config.LLM.GeminiModel = "gemini-2.5-flash"
	assert.Equal(t, "gemini-2.5-flash", config.GeminiASRModel())

	config.ASR.GeminiModel = "gemini-2.5-flash-lite"
	assert.Equal(t, "gemini-2.5-flash-lite", config.GeminiASRModel())
}
