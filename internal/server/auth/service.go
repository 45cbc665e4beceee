// Package auth implements the register/login/refresh/logout use-cases on top
// of the credential store and the token service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cushion-app/cushion-server/internal/crypto"
	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage"
	"github.com/cushion-app/cushion-server/internal/server/token"
)

// Service orchestrates authentication use-cases. Each call is a short-lived
// transaction; the service itself holds no per-user state.
type Service struct {
	logger *slog.Logger
	users  storage.UserStorage
	tokens *token.Service
}

// NewService creates a new auth service
func NewService(logger *slog.Logger, users storage.UserStorage, tokens *token.Service) *Service {
	return &Service{
		logger: logger,
		users:  users,
		tokens: tokens,
	}
}

// Register creates a new local user and issues the first token pair.
// Returns ErrEmailTaken if the email is already registered.
func (s *Service) Register(ctx context.Context, email, password, name string) (*models.User, *token.Pair, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  hash,
		Name:      name,
		Role:      models.RoleUser,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID))

	return user, pair, nil
}

// Login verifies credentials and issues a token pair. Unknown email, wrong
// password and non-active account all map to ErrInvalidCredentials; the
// specific cause goes to the log only.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, *token.Pair, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.logger.WarnContext(ctx, "login failed: user not found")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := crypto.VerifyPassword(password, user.Password); err != nil {
		s.logger.WarnContext(ctx, "login failed: invalid password",
			slog.String("user_id", user.ID))
		return nil, nil, ErrInvalidCredentials
	}

	if user.Status != models.StatusActive {
		s.logger.WarnContext(ctx, "login failed: account not active",
			slog.String("user_id", user.ID),
			slog.String("status", string(user.Status)))
		return nil, nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		s.logger.WarnContext(ctx, "failed to update last login",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
	user.LastLoginAt = &now

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID))

	return user, pair, nil
}

// RefreshTokens rotates a refresh token: the presented token is verified,
// consumed (single use) and replaced with a fresh pair. Of two concurrent
// rotations of the same token exactly one succeeds.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*token.Pair, error) {
	claims, err := s.tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	// Токен ссылается на пользователя по значению на момент выдачи,
	// состояние учетной записи перечитывается из хранилища
	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, token.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.Status != models.StatusActive {
		s.logger.WarnContext(ctx, "refresh rejected: account not active",
			slog.String("user_id", user.ID),
			slog.String("status", string(user.Status)))
		return nil, token.ErrInvalidToken
	}

	// Отзываем использованный jti до выдачи новой пары
	if err := s.tokens.Consume(ctx, claims.ID); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens rotated",
		slog.String("user_id", user.ID))

	return pair, nil
}

// Logout revokes every refresh token the user owns ("log out everywhere").
// Idempotent: a second call finds nothing to revoke and succeeds.
func (s *Service) Logout(ctx context.Context, userID string) error {
	count, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
		slog.Int("tokens_revoked", count))

	return nil
}

// ValidateUser re-checks that the account behind a verified token still
// exists and is active. Called by the middleware on every request so a
// suspended account is cut off before its tokens expire.
func (s *Service) ValidateUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.Status != models.StatusActive {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
