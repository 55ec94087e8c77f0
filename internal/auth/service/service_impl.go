package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultTTL = 24 * time.Hour

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	log    *zap.Logger
	clock  clock.Clock
	secret []byte
	ttl    time.Duration
}

func New(p Params) (authdomain.TokenService, error) {
	log := p.Log.Named("auth.service")
	secret := p.Cfg.AuthJWTSecret
	if secret == "" {
		if p.Cfg.Environment == "production" {
			return nil, authdomain.ErrMissingSecret
		}
		secret = uuid.NewString()
		log.Warn("AUTH_JWT_SECRET not set, using an ephemeral secret")
	}
	return NewWithSecret(log, p.Clock, []byte(secret), p.Cfg.AuthTokenTTL), nil
}

func NewWithSecret(log *zap.Logger, clk clock.Clock, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{log: log, clock: clk, secret: secret, ttl: ttl}
}

func (s *Service) Issue(ctx context.Context, req authdomain.IssueRequest) (*authdomain.Token, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.StoreID = strings.TrimSpace(req.StoreID)
	if req.UserID == "" || req.StoreID == "" || !req.Role.Valid() {
		return nil, authdomain.ErrInvalidClaims
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.clock.Now()
	exp := now.Add(ttl)
	claims := &authdomain.Claims{
		UserID:  req.UserID,
		Email:   req.Email,
		Role:    req.Role,
		StoreID: req.StoreID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &authdomain.Token{Token: signed, ExpiresAt: exp}, nil
}

func (s *Service) Parse(ctx context.Context, raw string) (*authdomain.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, authdomain.ErrMissingToken
	}

	// Time based claims are checked against the injected clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &authdomain.Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, authdomain.ErrInvalidToken
	}

	now := s.clock.Now()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return nil, authdomain.ErrInvalidToken
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, authdomain.ErrInvalidToken
	}
	if claims.UserID == "" || claims.StoreID == "" || !claims.Role.Valid() {
		return nil, authdomain.ErrInvalidToken
	}
	return claims, nil
}
