// Package memory provides in-memory store adapters. They back the test
// suite and the STORE=memory dev mode; production uses the postgres package.
package memory

import (
	"context"
	"sync"

	"github.com/vaibhav071104/vaultguard/internal/domain"
)

// UserStore is a thread-safe in-memory port.UserStore.
type UserStore struct {
	mu         sync.RWMutex
	users      map[string]*domain.User
	byUsername map[string]string
}

// NewUserStore creates an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[user.Username]; exists {
		return &domain.ErrConflict{Message: "username already registered: " + user.Username}
	}
	u := *user
	s.users[u.ID] = &u
	s.byUsername[u.Username] = u.ID
	return nil
}

func (s *UserStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	copied := *u
	return &copied, nil
}

func (s *UserStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: username}
	}
	copied := *s.users[id]
	return &copied, nil
}

// SoftDeleteUser flips the deleted flag. Repeating the call is a no-op.
func (s *UserStore) SoftDeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: id}
	}
	u.Deleted = true
	return nil
}
