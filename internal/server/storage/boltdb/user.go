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

// userRecord is the stored form of a user. models.User hides the password
// hash from JSON output, а в хранилище hash обязан сохраняться, поэтому
// запись сериализуется через собственный тип с явными полями.
type userRecord struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	Name        string     `json:"name,omitempty"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login,omitempty"`
}

func marshalUser(user *models.User) ([]byte, error) {
	return json.Marshal(userRecord{
		ID:          user.ID,
		Email:       user.Email,
		Password:    user.Password,
		Name:        user.Name,
		Role:        string(user.Role),
		Status:      string(user.Status),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
		LastLoginAt: user.LastLoginAt,
	})
}

func unmarshalUser(data []byte) (*models.User, error) {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &models.User{
		ID:          rec.ID,
		Email:       rec.Email,
		Password:    rec.Password,
		Name:        rec.Name,
		Role:        models.Role(rec.Role),
		Status:      models.Status(rec.Status),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		LastLoginAt: rec.LastLoginAt,
	}, nil
}

// CreateUser creates a new user in the storage
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		emails := tx.Bucket(bucketUserEmails)

		// Уникальность id и email проверяется внутри одной write-транзакции
		if users.Get([]byte(user.ID)) != nil {
			return storage.ErrUserAlreadyExists
		}
		if emails.Get([]byte(user.Email)) != nil {
			return storage.ErrUserAlreadyExists
		}

		data, err := marshalUser(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}

		if err := users.Put([]byte(user.ID), data); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
		if err := emails.Put([]byte(user.Email), []byte(user.ID)); err != nil {
			return fmt.Errorf("failed to save email index: %w", err)
		}

		return nil
	})
}

// GetUserByEmail retrieves user by email
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User

	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUserEmails).Get([]byte(email))
		if id == nil {
			return storage.ErrUserNotFound
		}

		var err error
		user, err = getUser(tx, string(id))
		return err
	})

	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user *models.User

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx, userID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return user, nil
}

func getUser(tx *bbolt.Tx, userID string) (*models.User, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(userID))
	if data == nil {
		return nil, storage.ErrUserNotFound
	}

	return unmarshalUser(data)
}

func putUser(tx *bbolt.Tx, user *models.User) error {
	data, err := marshalUser(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := tx.Bucket(bucketUsers).Put([]byte(user.ID), data); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// UpdateUser updates user information
func (s *Storage) UpdateUser(ctx context.Context, user *models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		current, err := getUser(tx, user.ID)
		if err != nil {
			return err
		}

		// Поддерживаем email-индекс при смене адреса
		if current.Email != user.Email {
			emails := tx.Bucket(bucketUserEmails)
			if emails.Get([]byte(user.Email)) != nil {
				return storage.ErrUserAlreadyExists
			}
			if err := emails.Delete([]byte(current.Email)); err != nil {
				return fmt.Errorf("failed to delete email index: %w", err)
			}
			if err := emails.Put([]byte(user.Email), []byte(user.ID)); err != nil {
				return fmt.Errorf("failed to save email index: %w", err)
			}
		}

		return putUser(tx, user)
	})
}

// UpdateStatus changes the account status
func (s *Storage) UpdateStatus(ctx context.Context, userID string, status models.Status) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user, err := getUser(tx, userID)
		if err != nil {
			return err
		}

		user.Status = status
		user.UpdatedAt = time.Now().UTC()

		return putUser(tx, user)
	})
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user, err := getUser(tx, userID)
		if err != nil {
			return err
		}

		user.LastLoginAt = &lastLogin

		return putUser(tx, user)
	})
}
