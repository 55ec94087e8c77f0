package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	authservice "github.com/smallbiznis/perishables/internal/auth/service"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var errNoSecret = errors.New("AUTH_JWT_SECRET must be set to issue tokens")

// runTokenCommand signs a bearer token with the configured secret, for local testing.
func runTokenCommand(args []string, out io.Writer) error {
	cfg := config.Load()

	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	user := fs.String("user", "dev-user", "user id placed in the token")
	email := fs.String("email", "", "optional email claim")
	role := fs.String("role", string(authdomain.RoleManager), "associate, manager or admin")
	store := fs.String("store", "1234", "store the token is scoped to")
	ttl := fs.Duration("ttl", cfg.AuthTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return issueToken(cfg.AuthJWTSecret, authdomain.IssueRequest{
		UserID:  *user,
		Email:   *email,
		Role:    authdomain.Role(*role),
		StoreID: *store,
		TTL:     *ttl,
	}, clock.NewSystemClock(), out)
}

func issueToken(secret string, req authdomain.IssueRequest, clk clock.Clock, out io.Writer) error {
	if secret == "" {
		return errNoSecret
	}
	tokens := authservice.NewWithSecret(zap.NewNop(), clk, []byte(secret), req.TTL)
	tok, err := tokens.Issue(context.Background(), req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\nexpires %s\n", tok.Token, tok.ExpiresAt.UTC().Format(time.RFC3339))
	return err
}
