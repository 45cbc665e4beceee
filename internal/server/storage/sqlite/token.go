package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage"
)

// SaveRefreshToken stores a new ledger entry
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (jti, user_id, revoked, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.JTI,
		token.UserID,
		token.Revoked,
		token.ExpiresAt,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a ledger entry by jti
func (s *Storage) GetRefreshToken(ctx context.Context, jti string) (*models.RefreshToken, error) {
	query := `
		SELECT jti, user_id, revoked, expires_at, created_at
		FROM refresh_tokens
		WHERE jti = ?
	`

	token := &models.RefreshToken{}

	err := s.db.QueryRowContext(ctx, query, jti).Scan(
		&token.JTI,
		&token.UserID,
		&token.Revoked,
		&token.ExpiresAt,
		&token.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// RevokeRefreshToken marks the entry revoked, idempotent
func (s *Storage) RevokeRefreshToken(ctx context.Context, jti string) error {
	query := `UPDATE refresh_tokens SET revoked = 1 WHERE jti = ?`

	result, err := s.db.ExecContext(ctx, query, jti)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return checkAffected(result, storage.ErrTokenNotFound)
}

// ConsumeRefreshToken marks the entry revoked only if it is still live.
// The conditional UPDATE with affected-rows check closes the race window
// between two concurrent rotations of the same token.
func (s *Storage) ConsumeRefreshToken(ctx context.Context, jti string) error {
	query := `UPDATE refresh_tokens SET revoked = 1 WHERE jti = ? AND revoked = 0`

	result, err := s.db.ExecContext(ctx, query, jti)
	if err != nil {
		return fmt.Errorf("failed to consume refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		// Либо записи нет, либо ее уже отозвали
		var revoked bool
		err := s.db.QueryRowContext(ctx,
			`SELECT revoked FROM refresh_tokens WHERE jti = ?`, jti).Scan(&revoked)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check refresh token: %w", err)
		}
		return storage.ErrTokenRevoked
	}

	return nil
}

// RevokeUserTokens revokes all non-revoked entries owned by the user
func (s *Storage) RevokeUserTokens(ctx context.Context, userID string) (int, error) {
	query := `UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`

	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// DeleteExpiredTokens removes all expired entries
func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < ?`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}
