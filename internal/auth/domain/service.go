package domain

import "context"

type TokenService interface {
	Issue(ctx context.Context, req IssueRequest) (*Token, error)
	Parse(ctx context.Context, token string) (*Claims, error)
}
