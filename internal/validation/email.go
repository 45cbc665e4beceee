package validation

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	// MaxEmailLen максимальная длина email
	MaxEmailLen = 254
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 6
	// MaxPasswordLen максимальная длина пароля
	MaxPasswordLen = 100
	// MaxNameLen максимальная длина отображаемого имени
	MaxNameLen = 100
)

// ValidateEmail проверяет, что email имеет корректный формат
// Адрес хранится и сравнивается case-sensitive, как пришел от клиента
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format")
	}

	// mail.ParseAddress принимает формы вида "Name <user@host>",
	// для регистрации допускается только голый адрес
	if addr.Address != email {
		return fmt.Errorf("invalid email format")
	}

	if !strings.Contains(email, ".") {
		return fmt.Errorf("invalid email format")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
// Длина: 6-100 символов
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}

	return nil
}

// ValidateName проверяет отображаемое имя пользователя
// Имя опционально, пустая строка допустима
func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLen)
	}

	return nil
}
