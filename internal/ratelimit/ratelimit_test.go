package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/healthconnect/feed-engine/internal/ratelimit"
)

func TestBurstThenDeny(t *testing.T) {
	limiter := ratelimit.NewInMemoryLimiter(1, time.Minute, 2)

	assert.True(t, limiter.Allow("viewer-1"))
	assert.True(t, limiter.Allow("viewer-1"))
	assert.False(t, limiter.Allow("viewer-1"))
}

func TestViewersAreIndependent(t *testing.T) {
	limiter := ratelimit.NewInMemoryLimiter(1, time.Minute, 1)

	assert.True(t, limiter.Allow("viewer-1"))
	assert.False(t, limiter.Allow("viewer-1"))
	assert.True(t, limiter.Allow("viewer-2"))
}
