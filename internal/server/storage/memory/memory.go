// Package memory provides a map-backed implementation of the storage
// interfaces for tests. Time is injectable and failures are triggered by
// explicit fields, not by probabilities or background timers.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage"
)

// Storage is an in-memory UserStorage + TokenStorage.
// Safe for concurrent use.
type Storage struct {
	mu     sync.Mutex
	users  map[string]*models.User         // user id -> user
	emails map[string]string               // email -> user id
	tokens map[string]*models.RefreshToken // jti -> ledger entry

	// Now supplies the current time for expiry checks. Defaults to time.Now.
	Now func() time.Time

	// Failure injection: when set, the matching operation returns the error
	FailCreateUser error
	FailSaveToken  error
	FailGetToken   error
}

// New creates an empty in-memory storage
func New() *Storage {
	return &Storage{
		users:  make(map[string]*models.User),
		emails: make(map[string]string),
		tokens: make(map[string]*models.RefreshToken),
		Now:    time.Now,
	}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

func cloneToken(t *models.RefreshToken) *models.RefreshToken {
	c := *t
	return &c
}

// CreateUser creates a new user
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	if s.FailCreateUser != nil {
		return s.FailCreateUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return storage.ErrUserAlreadyExists
	}
	if _, exists := s.emails[user.Email]; exists {
		return storage.ErrUserAlreadyExists
	}

	s.users[user.ID] = cloneUser(user)
	s.emails[user.Email] = user.ID

	return nil
}

// GetUserByEmail retrieves user by email
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return cloneUser(s.users[id]), nil
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return cloneUser(user), nil
}

// UpdateUser updates user information
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}

	if current.Email != user.Email {
		if _, taken := s.emails[user.Email]; taken {
			return storage.ErrUserAlreadyExists
		}
		delete(s.emails, current.Email)
		s.emails[user.Email] = user.ID
	}

	s.users[user.ID] = cloneUser(user)

	return nil
}

// UpdateStatus changes the account status
func (s *Storage) UpdateStatus(ctx context.Context, userID string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	user.Status = status
	user.UpdatedAt = s.Now()

	return nil
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	user.LastLoginAt = &lastLogin

	return nil
}

// SaveRefreshToken stores a new ledger entry
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if s.FailSaveToken != nil {
		return s.FailSaveToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.JTI] = cloneToken(token)

	return nil
}

// GetRefreshToken retrieves a ledger entry by jti
func (s *Storage) GetRefreshToken(ctx context.Context, jti string) (*models.RefreshToken, error) {
	if s.FailGetToken != nil {
		return nil, s.FailGetToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[jti]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	return cloneToken(token), nil
}

// RevokeRefreshToken marks the entry revoked, idempotent
func (s *Storage) RevokeRefreshToken(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[jti]
	if !ok {
		return storage.ErrTokenNotFound
	}

	token.Revoked = true

	return nil
}

// ConsumeRefreshToken marks the entry revoked only if it is still live.
// The mutex makes the check-then-revoke atomic per jti.
func (s *Storage) ConsumeRefreshToken(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[jti]
	if !ok {
		return storage.ErrTokenNotFound
	}

	if token.Revoked {
		return storage.ErrTokenRevoked
	}

	token.Revoked = true

	return nil
}

// RevokeUserTokens revokes all non-revoked entries owned by the user
func (s *Storage) RevokeUserTokens(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			count++
		}
	}

	return count, nil
}

// DeleteExpiredTokens removes all expired entries. Explicit sweep, the
// storage never starts its own cleanup timer.
func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	count := 0
	for jti, token := range s.tokens {
		if token.ExpiresAt.Before(now) {
			delete(s.tokens, jti)
			count++
		}
	}

	return count, nil
}

// Close is a no-op, present so the backend satisfies the same contract
// as the file-backed stores
func (s *Storage) Close() error {
	return nil
}
