// Package favorite keeps the set of favorite products of the current user.
package favorite

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const (
	keyPrefix = "favorites_"
	guestKey  = keyPrefix + "guest"
)

// Key is the storage key for userID, or the guest key when userID is empty.
func Key(userID string) string {
	if userID == "" {
		return guestKey
	}
	return keyPrefix + userID
}

// Set is the favorites of one user, persisted as a JSON array of product ids.
// Storage failures are logged and never returned; the in-memory set stays the
// source of truth for the rest of the session.
type Set struct {
	mu      sync.RWMutex
	userID  string
	ids     []string
	storage Storage
	logger  *zap.Logger
}

func NewSet(storage Storage, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{
		storage: storage,
		logger:  logger,
	}
}

// SwitchUser discards the current set and loads the one stored for userID.
func (s *Set) SwitchUser(ctx context.Context, userID string) {
	ids := s.load(ctx, Key(userID))

	s.mu.Lock()
	s.userID = userID
	s.ids = ids
	s.mu.Unlock()
}

// Toggle flips membership of productID and persists the result. It returns
// whether the product is a favorite afterwards.
func (s *Set) Toggle(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	favored := true
	if i := indexOf(s.ids, productID); i >= 0 {
		s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
		favored = false
	} else {
		s.ids = append(s.ids, productID)
	}

	// persisted under the lock so concurrent toggles are written in order
	s.save(ctx, Key(s.userID), s.ids)
	return favored
}

func (s *Set) IsFavorite(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.ids, productID) >= 0
}

// IDs returns the favorite product ids in the order they were added.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.ids...)
}

func (s *Set) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Clear removes the persisted record. The in-memory set is emptied only when
// the removal succeeded. The lock is held throughout so a concurrent
// SwitchUser waits and cannot have its freshly loaded set wiped.
func (s *Set) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(s.userID)
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Error("Failed to clear favorites", zap.String("key", key), zap.Error(err))
		return
	}
	s.ids = nil
}

func (s *Set) load(ctx context.Context, key string) []string {
	raw, err := s.storage.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to load favorites", zap.String("key", key), zap.Error(err))
		return nil
	}

	var ids []string
	if err = json.Unmarshal(raw, &ids); err != nil {
		s.logger.Error("Failed to decode favorites", zap.String("key", key), zap.Error(err))
		return nil
	}
	return ids
}

func (s *Set) save(ctx context.Context, key string, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		s.logger.Error("Failed to encode favorites", zap.String("key", key), zap.Error(err))
		return
	}
	if err = s.storage.Set(ctx, key, raw); err != nil {
		s.logger.Error("Failed to save favorites", zap.String("key", key), zap.Error(err))
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
