// Package idp verifies tokens minted by an external identity provider and
// normalizes the result into a local identity. The provider's signature
// scheme and key rotation are its own concern: this client only asks the
// provider whether the token maps to a user.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout ограничивает обращение к провайдеру, чтобы его недоступность
// не копила висящие запросы
const DefaultTimeout = 5 * time.Second

// ErrTokenRejected indicates the provider did not accept the token.
// Any transport or decoding failure is reported the same way: the adapter
// fails closed, provider trouble never authenticates anyone.
var ErrTokenRejected = errors.New("identity provider rejected token")

// ExternalIdentity is the provider's view of the authenticated user
type ExternalIdentity struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

// Client представляет HTTP клиент для обращения к identity provider
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new identity provider client
// baseURL is the provider's API root, apiKey may be empty
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// userResponse - формат ответа эндпоинта /auth/v1/user
type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name      string `json:"name"`
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

// VerifyExternalToken asks the provider to resolve the token into a user.
// Every failure path returns ErrTokenRejected.
func (c *Client) VerifyExternalToken(ctx context.Context, token string) (*ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTokenRejected, resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}

	if user.ID == "" || user.Email == "" {
		return nil, fmt.Errorf("%w: incomplete user data", ErrTokenRejected)
	}

	name := user.UserMetadata.Name
	if name == "" {
		name = user.UserMetadata.FullName
	}

	return &ExternalIdentity{
		ID:        user.ID,
		Email:     user.Email,
		Name:      name,
		AvatarURL: user.UserMetadata.AvatarURL,
	}, nil
}
