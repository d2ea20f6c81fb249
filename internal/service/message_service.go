package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
	"github.com/libohan-ha/BaiHe-sub001/shared/redis"
)

// recentCacheTTL bounds how stale a cached context window may be.
// Appends invalidate eagerly; the TTL only covers invalidation races.
const recentCacheTTL = 30 * time.Second

// MessageService is the message store gateway: it appends messages to
// the room log and serves the bounded recent-context window. Creation
// order is assigned here, never by clients.
type MessageService struct {
	db    *gorm.DB
	cache *redis.Client
	log   *logger.Logger

	mu         sync.Mutex
	cachedKeys map[string]struct{}
}

// NewMessageService creates a new message service. The redis client is
// optional; without it every Recent call goes to the database.
func NewMessageService(db *gorm.DB, cache *redis.Client) *MessageService {
	return &MessageService{
		db:         db,
		cache:      cache,
		log:        logger.GetGlobal().WithComponent("message_service"),
		cachedKeys: make(map[string]struct{}),
	}
}

// Append persists a human message and returns it with its assigned id
// and timestamp
func (s *MessageService) Append(ctx context.Context, content, imageURL string, authorID uint) (*models.Message, error) {
	msg := models.Message{
		Content:  content,
		ImageURL: imageURL,
		AuthorID: authorID,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.invalidateRecent(ctx)
	return &msg, nil
}

// AppendAIReply persists a completed persona reply as a room message
func (s *MessageService) AppendAIReply(ctx context.Context, content string, personaID uint) (*models.Message, error) {
	msg := models.Message{
		Content:   content,
		PersonaID: &personaID,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("append ai reply: %w", err)
	}

	s.invalidateRecent(ctx)
	return &msg, nil
}

// Recent returns up to limit messages ordered oldest-first (most-recent-last)
func (s *MessageService) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	key := recentCacheKey(limit)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var cached []models.Message
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		} else if !redis.IsMiss(err) {
			s.log.Warn("recent cache read failed", "error", err.Error())
		}
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}

	// Query fetched newest-first; callers expect most-recent-last
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if s.cache != nil {
		if data, err := json.Marshal(messages); err == nil {
			if err := s.cache.Set(ctx, key, data, recentCacheTTL); err != nil {
				s.log.Warn("recent cache write failed", "error", err.Error())
			} else {
				s.trackKey(key)
			}
		}
	}

	return messages, nil
}

// trackKey records a window key this process has cached so an append
// can invalidate it later
func (s *MessageService) trackKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedKeys[key] = struct{}{}
}

// takeCachedKeys drains the set of keys cached since the last append
func (s *MessageService) takeCachedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.cachedKeys))
	for k := range s.cachedKeys {
		keys = append(keys, k)
	}
	s.cachedKeys = make(map[string]struct{})
	return keys
}

// invalidateRecent drops every window this process has cached. Windows
// cached by other replicas age out through the TTL instead.
func (s *MessageService) invalidateRecent(ctx context.Context) {
	if s.cache == nil {
		return
	}
	keys := s.takeCachedKeys()
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("recent cache invalidation failed", "error", err.Error())
	}
}

func recentCacheKey(limit int) string {
	return fmt.Sprintf("chat:recent:%d", limit)
}
