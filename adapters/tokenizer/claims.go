package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"userId"`
	Address   string `json:"address,omitempty"`
	RefreshID string `json:"rid"` // ID of the refresh token
}

// RefreshClaims carry the account alongside the standard claims
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId"`
	Address string `json:"address,omitempty"`
}
