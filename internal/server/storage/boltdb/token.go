package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage"
)

// SaveRefreshToken stores a new ledger entry
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putToken(tx, token)
	})
}

// GetRefreshToken retrieves a ledger entry by jti
func (s *Storage) GetRefreshToken(ctx context.Context, jti string) (*models.RefreshToken, error) {
	var token *models.RefreshToken

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		token, err = getToken(tx, jti)
		return err
	})

	if err != nil {
		return nil, err
	}

	return token, nil
}

func getToken(tx *bbolt.Tx, jti string) (*models.RefreshToken, error) {
	data := tx.Bucket(bucketTokens).Get([]byte(jti))
	if data == nil {
		return nil, storage.ErrTokenNotFound
	}

	token := &models.RefreshToken{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	return token, nil
}

func putToken(tx *bbolt.Tx, token *models.RefreshToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if err := tx.Bucket(bucketTokens).Put([]byte(token.JTI), data); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	return nil
}

// RevokeRefreshToken marks the entry revoked, idempotent
func (s *Storage) RevokeRefreshToken(ctx context.Context, jti string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		token, err := getToken(tx, jti)
		if err != nil {
			return err
		}

		token.Revoked = true

		return putToken(tx, token)
	})
}

// ConsumeRefreshToken marks the entry revoked only if it is still live.
// bbolt serializes write transactions, so the read-check-write below is
// atomic per jti and two concurrent consumers see exactly one success.
func (s *Storage) ConsumeRefreshToken(ctx context.Context, jti string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		token, err := getToken(tx, jti)
		if err != nil {
			return err
		}

		if token.Revoked {
			return storage.ErrTokenRevoked
		}

		token.Revoked = true

		return putToken(tx, token)
	})
}

// RevokeUserTokens revokes all non-revoked entries owned by the user
func (s *Storage) RevokeUserTokens(ctx context.Context, userID string) (int, error) {
	count := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTokens)

		// Сначала собираем затронутые записи: модификация bucket внутри
		// ForEach не допускается
		var owned []*models.RefreshToken
		if err := bucket.ForEach(func(k, v []byte) error {
			token := &models.RefreshToken{}
			if err := json.Unmarshal(v, token); err != nil {
				return fmt.Errorf("failed to unmarshal refresh token: %w", err)
			}

			if token.UserID == userID && !token.Revoked {
				owned = append(owned, token)
			}

			return nil
		}); err != nil {
			return err
		}

		for _, token := range owned {
			token.Revoked = true
			if err := putToken(tx, token); err != nil {
				return err
			}
			count++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteExpiredTokens removes all expired entries
func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int, error) {
	count := 0
	now := time.Now().UTC()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTokens)

		var expired [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			token := &models.RefreshToken{}
			if err := json.Unmarshal(v, token); err != nil {
				return fmt.Errorf("failed to unmarshal refresh token: %w", err)
			}

			if token.ExpiresAt.Before(now) {
				key := make([]byte, len(k))
				copy(key, k)
				expired = append(expired, key)
			}

			return nil
		}); err != nil {
			return err
		}

		for _, key := range expired {
			if err := bucket.Delete(key); err != nil {
				return fmt.Errorf("failed to delete refresh token: %w", err)
			}
			count++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return count, nil
}
