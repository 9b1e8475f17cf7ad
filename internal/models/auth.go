package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the JWT claims carried by access tokens. MFAVerified
// marks a session that has passed a TOTP check since the token was
// issued; downstream services treat it as the trust elevation signal.
type TokenClaims struct {
	Type        string `json:"type"` // "access"
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	MFAVerified bool   `json:"mfa_verified,omitempty"`
	jwt.RegisteredClaims
}
