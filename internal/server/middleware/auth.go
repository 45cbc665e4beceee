package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/auth"
	"github.com/cushion-app/cushion-server/internal/server/handlers"
	"github.com/cushion-app/cushion-server/internal/server/idp"
	"github.com/cushion-app/cushion-server/internal/server/storage"
	"github.com/cushion-app/cushion-server/internal/server/token"
)

// Authenticator turns a bearer credential into a verified identity.
// Выбирается один раз при конфигурировании процесса: локальная проверка JWT
// или делегирование внешнему identity provider.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenString string) (*models.Identity, error)
}

// LocalAuthenticator verifies locally issued access tokens and re-checks
// the account status on every request.
type LocalAuthenticator struct {
	tokens *token.Service
	auth   *auth.Service
}

// NewLocalAuthenticator creates the local-JWT authenticator
func NewLocalAuthenticator(tokens *token.Service, authService *auth.Service) *LocalAuthenticator {
	return &LocalAuthenticator{
		tokens: tokens,
		auth:   authService,
	}
}

// Authenticate validates the access token and the account behind it
func (a *LocalAuthenticator) Authenticate(ctx context.Context, tokenString string) (*models.Identity, error) {
	claims, err := a.tokens.VerifyAccess(tokenString)
	if err != nil {
		return nil, err
	}

	// Токен подписан на момент выдачи, состояние учетной записи
	// перепроверяется на каждом запросе
	user, err := a.auth.ValidateUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	return &models.Identity{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}

// ExternalVerifier is the identity-provider capability the external
// authenticator depends on
type ExternalVerifier interface {
	VerifyExternalToken(ctx context.Context, token string) (*idp.ExternalIdentity, error)
}

// ExternalAuthenticator verifies provider-issued tokens and maps them to
// local user records, provisioning one on first sight.
type ExternalAuthenticator struct {
	logger   *slog.Logger
	provider ExternalVerifier
	users    storage.UserStorage
}

// NewExternalAuthenticator creates the identity-provider authenticator
func NewExternalAuthenticator(logger *slog.Logger, provider ExternalVerifier, users storage.UserStorage) *ExternalAuthenticator {
	return &ExternalAuthenticator{
		logger:   logger,
		provider: provider,
		users:    users,
	}
}

// Authenticate delegates verification to the provider and resolves the local
// user record keyed by the external id
func (a *ExternalAuthenticator) Authenticate(ctx context.Context, tokenString string) (*models.Identity, error) {
	external, err := a.provider.VerifyExternalToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetUserByID(ctx, external.ID)
	if errors.Is(err, storage.ErrUserNotFound) {
		user, err = a.provision(ctx, external)
	}
	if err != nil {
		return nil, err
	}

	if user.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: account not active", auth.ErrInvalidCredentials)
	}

	return &models.Identity{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}

// provision creates a local record for a first-seen external user.
// Два конкурентных первых запроса могут вставлять одну и ту же запись:
// проигравший получает duplicate-key и перечитывает уже существующую строку.
func (a *ExternalAuthenticator) provision(ctx context.Context, external *idp.ExternalIdentity) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:        external.ID, // внешний id используется как локальный
		Email:     external.Email,
		Password:  "", // пароль хранится у провайдера
		Name:      external.Name,
		Role:      models.RoleUser,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := a.users.CreateUser(ctx, user)
	if err == nil {
		a.logger.InfoContext(ctx, "provisioned external user",
			slog.String("user_id", user.ID))
		return user, nil
	}

	if errors.Is(err, storage.ErrUserAlreadyExists) {
		return a.users.GetUserByID(ctx, external.ID)
	}

	return nil, fmt.Errorf("failed to provision user: %w", err)
}

// Authenticate создает middleware для проверки bearer credential.
// Любая ошибка на любом шаге завершает запрос ответом 401.
func Authenticate(logger *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header")
				unauthorized(w, "No token provided")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("Invalid Authorization header format")
				unauthorized(w, "No token provided")
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), parts[1])
			if err != nil {
				logger.Warn("Authentication failed", "error", err)
				unauthorized(w, "Invalid token")
				return
			}

			ctx := handlers.ContextWithIdentity(r.Context(), identity)

			logger.Debug("User authenticated", "user_id", identity.ID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize создает middleware для проверки роли.
// Независимый от аутентификации шлюз: отсутствие identity и недостаточная
// роль оба завершаются 401.
func Authorize(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := handlers.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, "Not authenticated")
				return
			}

			if !allowed[identity.Role] {
				unauthorized(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"Unauthorized","message":%q}`, message)
}
