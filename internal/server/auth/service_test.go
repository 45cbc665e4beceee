package auth

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage/memory"
	"github.com/cushion-app/cushion-server/internal/server/token"
)

func setupTestService(t *testing.T) (*Service, *memory.Storage) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	store := memory.New()
	tokens := token.NewService(store, token.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})

	return NewService(logger, store, tokens), store
}

func TestService_RegisterThenLogin(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, models.StatusActive, user.Status)
	assert.NotEqual(t, "secret1", user.Password, "password must be stored hashed")
	assert.EqualValues(t, 900, pair.ExpiresIn)

	loggedIn, loginPair, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, loginPair)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotNil(t, loggedIn.LastLoginAt)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "alice@example.com", "other-password", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_Login_EnumerationResistance(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	// Неизвестный email и неверный пароль дают один и тот же результат
	_, _, unknownErr := svc.Login(ctx, "bob@example.com", "secret1")
	_, _, wrongErr := svc.Login(ctx, "alice@example.com", "wrong-password")

	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestService_Login_SuspendedAccount(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, user.ID, models.StatusSuspended))

	_, _, err = svc.Login(ctx, "alice@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RefreshTokens_Rotation(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	rotated, err := svc.RefreshTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// Старый refresh token одноразовый
	_, err = svc.RefreshTokens(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	// Новый продолжает работать
	_, err = svc.RefreshTokens(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestService_RefreshTokens_SuspendedAccount(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, user.ID, models.StatusSuspended))

	_, err = svc.RefreshTokens(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestService_RefreshTokens_Garbage(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.RefreshTokens(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestService_Logout_RevokesEverything(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	user, first, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	_, second, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID))

	// Оба refresh токена отозваны
	_, err = svc.RefreshTokens(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
	_, err = svc.RefreshTokens(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	// Повторный logout не является ошибкой
	assert.NoError(t, svc.Logout(ctx, user.ID))
}

func TestService_ValidateUser(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	got, err := svc.ValidateUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, store.UpdateStatus(ctx, user.ID, models.StatusSuspended))
	_, err = svc.ValidateUser(ctx, user.ID)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.ValidateUser(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
