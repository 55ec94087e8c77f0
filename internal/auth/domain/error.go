package domain

import "errors"

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrInvalidClaims = errors.New("invalid_claims")
	ErrMissingSecret = errors.New("missing_jwt_secret")
)
