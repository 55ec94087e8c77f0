// Package domain contains the token types shared by HTTP and websocket authentication.
package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type Role string

const (
	RoleAssociate Role = "associate"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAssociate, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// Claims is the signed payload of a session token.
type Claims struct {
	UserID  string `json:"userId"`
	Email   string `json:"email,omitempty"`
	Role    Role   `json:"role"`
	StoreID string `json:"storeId"`
	jwt.RegisteredClaims
}

type IssueRequest struct {
	UserID  string
	Email   string
	Role    Role
	StoreID string
	TTL     time.Duration
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
