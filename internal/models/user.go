package models

import "time"

// Role определяет уровень доступа пользователя
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Status определяет состояние учетной записи
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// User представляет пользователя в системе
type User struct {
	ID          string     `json:"id"`           // UUID пользователя
	Email       string     `json:"email"`        // уникальный email
	Password    string     `json:"-"`            // bcrypt хеш пароля, пустой для внешних пользователей
	Name        string     `json:"name"`         // отображаемое имя, опционально
	Role        Role       `json:"role"`         // USER или ADMIN
	Status      Status     `json:"status"`       // ACTIVE, INACTIVE, SUSPENDED
	CreatedAt   time.Time  `json:"created_at"`   // время создания
	UpdatedAt   time.Time  `json:"updated_at"`   // время последнего обновления
	LastLoginAt *time.Time `json:"last_login_at"` // время последнего входа
}

// Identity is the verified identity attached to an authenticated request.
// It lives for the duration of one request and is never persisted.
type Identity struct {
	ID    string
	Email string
	Role  Role
}
