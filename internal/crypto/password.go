package crypto

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHashCost - cost factor для bcrypt
// Увеличение на 1 удваивает время хеширования
const PasswordHashCost = 10

// HashPassword хеширует пароль с использованием bcrypt
// Используется при регистрации и смене пароля
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword проверяет, соответствует ли пароль сохраненному хешу
// Возвращает ошибку при несовпадении, сравнение выполняется за константное время
func VerifyPassword(password, hashedPassword string) error {
	if hashedPassword == "" {
		// Пользователи внешнего identity provider не имеют локального пароля
		return fmt.Errorf("no local password set")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return fmt.Errorf("invalid password")
	}

	return nil
}
