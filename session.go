package creamery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"goflare.io/creamery/cart"
	"goflare.io/creamery/favorite"
)

// Session is the state of one shopper: their cart and their favorites. The
// cart survives login and logout; the favorites follow the signed-in user.
type Session struct {
	mu     sync.RWMutex
	userID string
	email  string

	Cart      *cart.Store
	Favorites *favorite.Set
}

// NewSession starts a guest session.
func NewSession(ctx context.Context, storage favorite.Storage, logger *zap.Logger) *Session {
	s := &Session{
		Cart:      cart.NewStore(logger),
		Favorites: favorite.NewSet(storage, logger),
	}
	s.Favorites.SwitchUser(ctx, "")
	return s
}

func (s *Session) Login(ctx context.Context, userID, email string) {
	s.mu.Lock()
	s.userID = userID
	s.email = email
	s.mu.Unlock()

	s.Favorites.SwitchUser(ctx, userID)
}

func (s *Session) Logout(ctx context.Context) {
	s.Login(ctx, "", "")
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email
}

func (s *Session) IsGuest() bool {
	return s.UserID() == ""
}
