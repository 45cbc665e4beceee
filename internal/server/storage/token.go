package storage

import (
	"context"

	"github.com/cushion-app/cushion-server/internal/models"
)

// TokenStorage defines interface for the refresh-token revocation ledger.
// Entries are keyed by jti; the signed token string is never persisted.
type TokenStorage interface {
	// SaveRefreshToken stores a new ledger entry
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// GetRefreshToken retrieves a ledger entry by jti
	// Returns ErrTokenNotFound if the entry doesn't exist
	GetRefreshToken(ctx context.Context, jti string) (*models.RefreshToken, error)

	// RevokeRefreshToken marks the entry revoked
	// Idempotent: revoking an already revoked entry is not an error
	// Returns ErrTokenNotFound if the entry doesn't exist
	RevokeRefreshToken(ctx context.Context, jti string) error

	// ConsumeRefreshToken marks the entry revoked only if it is not revoked yet.
	// The check-then-revoke sequence is atomic per jti, so two concurrent
	// consumers of the same jti see exactly one success.
	// Returns ErrTokenRevoked if already revoked, ErrTokenNotFound if absent
	ConsumeRefreshToken(ctx context.Context, jti string) error

	// RevokeUserTokens revokes all non-revoked entries owned by the user
	// Returns the number of entries revoked
	RevokeUserTokens(ctx context.Context, userID string) (int, error)

	// DeleteExpiredTokens removes all expired entries
	// Returns the number of deleted entries
	DeleteExpiredTokens(ctx context.Context) (int, error)
}
