package core

import "time"

// AccessCredential is the short-lived bearer token and its expiry in epoch seconds
type AccessCredential struct {
	Token     string `json:"accessToken"`
	ExpiresAt int64  `json:"accessExp"`
}

// Expiry returns the expiry as a time.Time
func (c AccessCredential) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// Expired reports whether the credential is unusable at now. The final grace
// of its lifetime already counts as expired so in-flight requests do not race
// the real expiry.
func (c AccessCredential) Expired(now time.Time, grace time.Duration) bool {
	if c.Token == "" {
		return true
	}
	return !now.Add(grace).Before(c.Expiry())
}

// Validate checks that the credential may be stored at now
func (c AccessCredential) Validate(now time.Time) error {
	if c.Token == "" || c.ExpiresAt <= now.Unix() {
		return ErrInvalidCredential
	}
	return nil
}
