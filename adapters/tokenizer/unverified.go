package tokenizer

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what a client may read from its own access token without the
// issuer's key
type Claims struct {
	UserID    string
	Subject   string
	ID        string
	ExpiresAt int64
}

// DecodeUnverified reads claims from a token without checking its signature.
// Clients use it to recover the expiry or their own user id; it proves nothing.
func DecodeUnverified(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("failed to decode token: %w", err)
	}

	var c Claims
	c.UserID, _ = mc["userId"].(string)
	c.Subject, _ = mc["sub"].(string)
	c.ID = stringClaim(mc["id"])

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Unix()
	}
	return c, nil
}

// AccountID returns the first non-empty of userId, sub and id
func (c Claims) AccountID() string {
	for _, v := range []string{c.UserID, c.Subject, c.ID} {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringClaim(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}
