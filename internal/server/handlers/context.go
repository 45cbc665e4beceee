package handlers

import (
	"context"

	"github.com/cushion-app/cushion-server/internal/models"
)

type contextKey string

// identityKey - ключ контекста для verified identity текущего запроса
const identityKey contextKey = "identity"

// ContextWithIdentity attaches a verified identity to the request context
func ContextWithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the verified identity of the current request
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*models.Identity)
	return identity, ok
}
