package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecentCacheKeyTracking(t *testing.T) {
	s := &MessageService{cachedKeys: make(map[string]struct{})}

	s.trackKey(recentCacheKey(50))
	s.trackKey(recentCacheKey(75))
	s.trackKey(recentCacheKey(50))

	// Every window ever cached is invalidated, whatever its size
	keys := s.takeCachedKeys()
	assert.ElementsMatch(t, []string{"chat:recent:50", "chat:recent:75"}, keys)

	// Draining resets the set; the next append has nothing to delete
	assert.Empty(t, s.takeCachedKeys())
}
