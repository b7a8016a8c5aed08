package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.True(t, IsRateLimitError(errors.New("Error 429, Message: too many requests")))
	assert.True(t, IsRateLimitError(errors.New("Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for project")))
	assert.False(t, IsRateLimitError(errors.New("connection reset by peer")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	assert.InDelta(t, 45.387, ExtractRetryDelay(err).Seconds(), 0.001)

	assert.Equal(t, 12*time.Second, ExtractRetryDelay(errors.New("retryDelay: 12s")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no hint here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	config := NewDefaultRetryConfig()

	assert.Equal(t, 45*time.Second, config.CalculateBackoff(0, 0))
	assert.Equal(t, 67500*time.Millisecond, config.CalculateBackoff(1, 0))
	assert.Equal(t, 90*time.Second, config.CalculateBackoff(2, 0), "capped at MaxBackoff")
	assert.Equal(t, 15*time.Second, config.CalculateBackoff(0, 10*time.Second), "api delay plus buffer")
}

func TestBackoffFor(t *testing.T) {
	config := NewDefaultRetryConfig()

	assert.Equal(t, 2*time.Second, config.backoffFor(0, errors.New("EOF")))
	assert.Equal(t, 6*time.Second, config.backoffFor(2, errors.New("EOF")))
	assert.Equal(t, 25*time.Second, config.backoffFor(0, errors.New("429 Please retry in 20s")))
}
