package auth

import (
	"context"

	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	"github.com/smallbiznis/perishables/internal/auth/service"
	"github.com/smallbiznis/perishables/internal/realtime"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(service.New),
	fx.Provide(NewSessionAuthenticator),
)

type sessionAuthenticator struct {
	tokens authdomain.TokenService
}

// NewSessionAuthenticator validates websocket handshake tokens.
func NewSessionAuthenticator(tokens authdomain.TokenService) realtime.Authenticator {
	return &sessionAuthenticator{tokens: tokens}
}

func (a *sessionAuthenticator) Authenticate(ctx context.Context, token string) (realtime.Identity, error) {
	claims, err := a.tokens.Parse(ctx, token)
	if err != nil {
		return realtime.Identity{}, err
	}
	return realtime.Identity{
		UserID:  claims.UserID,
		StoreID: claims.StoreID,
		Role:    string(claims.Role),
	}, nil
}
