package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/auth"
	"github.com/cushion-app/cushion-server/internal/server/handlers"
	"github.com/cushion-app/cushion-server/internal/server/idp"
	"github.com/cushion-app/cushion-server/internal/server/storage/memory"
	"github.com/cushion-app/cushion-server/internal/server/token"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

type testEnv struct {
	store  *memory.Storage
	tokens *token.Service
	auth   *auth.Service
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	tokens := token.NewService(store, token.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	authService := auth.NewService(setupTestLogger(), store, tokens)

	return &testEnv{store: store, tokens: tokens, auth: authService}
}

// identityHandler is a handler that records the identity it sees
func identityHandler(t *testing.T, got **models.Identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := handlers.IdentityFromContext(r.Context())
		require.True(t, ok, "identity should be in context")
		*got = identity
		w.WriteHeader(http.StatusOK)
	}
}

func TestAuthenticate_Local_Success(t *testing.T) {
	env := setupTestEnv(t)

	user, pair, err := env.auth.Register(context.Background(), "alice@example.com", "secret1", "")
	require.NoError(t, err)

	var got *models.Identity
	handler := Authenticate(setupTestLogger(), NewLocalAuthenticator(env.tokens, env.auth))(identityHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, models.RoleUser, got.Role)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	env := setupTestEnv(t)

	handler := Authenticate(setupTestLogger(), NewLocalAuthenticator(env.tokens, env.auth))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "No token provided")
}

func TestAuthenticate_InvalidHeaderFormat(t *testing.T) {
	env := setupTestEnv(t)

	handler := Authenticate(setupTestLogger(), NewLocalAuthenticator(env.tokens, env.auth))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

	for _, header := range []string{"Token abc", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", header)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthenticate_BadToken(t *testing.T) {
	env := setupTestEnv(t)

	handler := Authenticate(setupTestLogger(), NewLocalAuthenticator(env.tokens, env.auth))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_SuspendedAccount(t *testing.T) {
	env := setupTestEnv(t)

	// Токен выдан пока учетная запись активна и еще не истек,
	// но перепроверка статуса отсекает заблокированного пользователя
	user, pair, err := env.auth.Register(context.Background(), "alice@example.com", "secret1", "")
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateStatus(context.Background(), user.ID, models.StatusSuspended))

	handler := Authenticate(setupTestLogger(), NewLocalAuthenticator(env.tokens, env.auth))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// fakeVerifier is an ExternalVerifier for tests
type fakeVerifier struct {
	identity *idp.ExternalIdentity
	err      error
}

func (f *fakeVerifier) VerifyExternalToken(ctx context.Context, token string) (*idp.ExternalIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func TestAuthenticate_External_ProvisionsOnFirstSight(t *testing.T) {
	env := setupTestEnv(t)

	verifier := &fakeVerifier{identity: &idp.ExternalIdentity{
		ID:    "ext-user-1",
		Email: "alice@example.com",
		Name:  "Alice",
	}}

	var got *models.Identity
	handler := Authenticate(setupTestLogger(),
		NewExternalAuthenticator(setupTestLogger(), verifier, env.store))(identityHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer ext-token")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "ext-user-1", got.ID)

	// Запись создана в локальном хранилище
	user, err := env.store.GetUserByID(context.Background(), "ext-user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.Password)
	assert.Equal(t, models.RoleUser, user.Role)

	// Второй запрос переиспользует существующую запись
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_External_ProviderRejects(t *testing.T) {
	env := setupTestEnv(t)

	verifier := &fakeVerifier{err: idp.ErrTokenRejected}

	handler := Authenticate(setupTestLogger(),
		NewExternalAuthenticator(setupTestLogger(), verifier, env.store))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached")
		}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad-token")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_External_SuspendedAccount(t *testing.T) {
	env := setupTestEnv(t)

	verifier := &fakeVerifier{identity: &idp.ExternalIdentity{
		ID:    "ext-user-1",
		Email: "alice@example.com",
	}}

	authenticator := NewExternalAuthenticator(setupTestLogger(), verifier, env.store)

	// Первый запрос создает пользователя
	_, err := authenticator.Authenticate(context.Background(), "ext-token")
	require.NoError(t, err)

	require.NoError(t, env.store.UpdateStatus(context.Background(), "ext-user-1", models.StatusSuspended))

	_, err = authenticator.Authenticate(context.Background(), "ext-token")
	assert.Error(t, err)
}

func TestAuthorize_Roles(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	adminOnly := Authorize(models.RoleAdmin)(next)

	// Без identity
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	adminOnly.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Not authenticated")

	// Недостаточная роль
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(handlers.ContextWithIdentity(req.Context(),
		&models.Identity{ID: "u1", Role: models.RoleUser}))
	w = httptest.NewRecorder()
	adminOnly.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient permissions")

	// Подходящая роль
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(handlers.ContextWithIdentity(req.Context(),
		&models.Identity{ID: "u1", Role: models.RoleAdmin}))
	w = httptest.NewRecorder()
	adminOnly.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
