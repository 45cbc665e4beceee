// Package token mints and verifies access/refresh token pairs and maintains
// the refresh-token revocation ledger.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server/storage"
)

const (
	// Issuer - значение claim iss во всех выдаваемых токенах
	Issuer = "cushion.app"
	// Audience - значение claim aud во всех выдаваемых токенах
	Audience = "cushion-users"

	// TypeAccess marks a short-lived API token
	TypeAccess = "access"
	// TypeRefresh marks a long-lived rotation token
	TypeRefresh = "refresh"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// type, expiry, unknown or revoked jti. Callers must not distinguish the
// cause in responses.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims for the application
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// Pair is an issued access/refresh token pair
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // время жизни access token в секундах
}

// Config содержит конфигурацию для выпуска токенов.
// Access и refresh токены подписываются разными секретами: общий секрет
// позволил бы принять подпись одного вида токена за другой.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now supplies the current time, defaults to time.Now
	Now func() time.Time
}

// Service issues, verifies and revokes token pairs
type Service struct {
	ledger        storage.TokenStorage
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewService creates a new token service backed by the given ledger
func NewService(ledger storage.TokenStorage, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		ledger:        ledger,
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
	}
}

// Issue mints a new access/refresh pair for the user and records the refresh
// token's jti in the ledger. A failed ledger write fails the whole call: a
// refresh token without a ledger entry would be unrevokable.
func (s *Service) Issue(ctx context.Context, user *models.User) (*Pair, error) {
	now := s.now()
	jti := uuid.New().String()

	accessToken, err := s.sign(user, TypeAccess, "", now, s.accessTTL, s.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := s.sign(user, TypeRefresh, jti, now, s.refreshTTL, s.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	entry := &models.RefreshToken{
		JTI:       jti,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}

	if err := s.ledger.SaveRefreshToken(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) sign(user *models.User, kind, jti string, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{
		Email: user.Email,
		Role:  string(user.Role),
		Type:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(secret)
}

func (s *Service) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyAccess validates an access token: signature, expiry and type.
// Stateless, no ledger lookup - the short TTL is the revocation mitigation.
func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.accessSecret)
	if err != nil {
		return nil, err
	}

	if claims.Type != TypeAccess {
		return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}

	return claims, nil
}

// VerifyRefresh validates a refresh token: signature, expiry, type, jti and
// ledger state. The ledger lookup is what makes a self-contained signed
// token revocable.
func (s *Service) VerifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	if claims.Type != TypeRefresh || claims.ID == "" {
		return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}

	entry, err := s.ledger.GetRefreshToken(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, fmt.Errorf("%w: unknown token", ErrInvalidToken)
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if entry.Revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidToken)
	}

	return claims, nil
}

// Revoke marks the ledger entry revoked. Idempotent.
func (s *Service) Revoke(ctx context.Context, jti string) error {
	if err := s.ledger.RevokeRefreshToken(ctx, jti); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// Consume revokes the ledger entry only if it is still live. Exactly one of
// several concurrent Consume calls for the same jti succeeds; the rest get
// ErrInvalidToken.
func (s *Service) Consume(ctx context.Context, jti string) error {
	err := s.ledger.ConsumeRefreshToken(ctx, jti)
	if err != nil {
		if errors.Is(err, storage.ErrTokenRevoked) || errors.Is(err, storage.ErrTokenNotFound) {
			return fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return fmt.Errorf("failed to consume token: %w", err)
	}
	return nil
}

// RevokeAll revokes every live refresh token owned by the user
func (s *Service) RevokeAll(ctx context.Context, userID string) (int, error) {
	count, err := s.ledger.RevokeUserTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return count, nil
}

// SweepExpired deletes expired ledger entries. Called by an external
// scheduler or the operator CLI, never by an internal timer.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	count, err := s.ledger.DeleteExpiredTokens(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	return count, nil
}
