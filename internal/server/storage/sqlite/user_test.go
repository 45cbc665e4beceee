package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func testUser(email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  "$2a$10$notarealhashnotarealhashnotarealhash",
		Name:      "Test User",
		Role:      models.RoleUser,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStorage_CreateUser(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	user := testUser("alice@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	got, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.LastLoginAt)
}

func TestStorage_CreateUser_DuplicateEmail(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("alice@example.com")))

	err := s.CreateUser(ctx, testUser("alice@example.com"))
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestStorage_GetUserByID_NotFound(t *testing.T) {
	s := setupTestStorage(t)

	_, err := s.GetUserByID(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStorage_UpdateStatus(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	user := testUser("alice@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	require.NoError(t, s.UpdateStatus(ctx, user.ID, models.StatusSuspended))

	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, got.Status)

	err = s.UpdateStatus(ctx, "no-such-id", models.StatusActive)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStorage_UpdateLastLogin(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	user := testUser("alice@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	loginTime := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateLastLogin(ctx, user.ID, loginTime))

	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, loginTime, *got.LastLoginAt, time.Second)
}

func TestStorage_UpdateUser(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	user := testUser("alice@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	user.Name = "Alice Renamed"
	user.Role = models.RoleAdmin
	user.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateUser(ctx, user))

	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", got.Name)
	assert.Equal(t, models.RoleAdmin, got.Role)
}
