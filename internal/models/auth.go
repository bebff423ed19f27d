package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims carries the authenticated caller's identity. Role claims are
// advisory for routing; governance decisions re-read durable role state.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// RoleSet converts the claim strings into typed roles.
func (c *JWTClaims) RoleSet() []Role {
	roles := make([]Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, Role(r))
	}
	return roles
}

// Actor is the resolved caller identity every mutating operation requires.
type Actor struct {
	ID    string
	Roles []Role
}

// Highest returns the actor's top-ranked role.
func (a Actor) Highest() Role {
	return HighestRole(a.Roles)
}

// LoginRequest captures login credentials plus request metadata.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// TokenPair is returned on successful authentication.
type TokenPair struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
