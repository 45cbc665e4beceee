package models

import "time"

// RefreshToken is a revocation-ledger entry for one issued refresh token.
// Only the token's jti is stored, never the signed token string itself.
type RefreshToken struct {
	JTI       string    `json:"jti"`        // уникальный идентификатор токена
	UserID    string    `json:"user_id"`    // владелец токена
	Revoked   bool      `json:"revoked"`    // true после logout или ротации
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время выдачи
}
