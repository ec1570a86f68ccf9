package middleware

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles admitted to the mutating routes.
const (
	RoleTrader = "trader"
	RoleAdmin  = "admin"
)

// OperatorClaims identify whoever drives the simulator over HTTP.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewOperatorClaims(operator, role string, duration time.Duration) *OperatorClaims {
	now := time.Now()
	return &OperatorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
}
