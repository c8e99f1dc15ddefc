package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// AccessTokenPayload is what callers provide when minting a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   string
	JTI    string
}

// AccessTokenClaims is the JWT claim set carried by access tokens.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"uid"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// ValidRole reports whether the role claim is one the API understands.
func ValidRole(role string) bool {
	return role == RoleMember || role == RoleAdmin
}
