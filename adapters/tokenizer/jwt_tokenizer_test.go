package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentbridge/trustlayer/core"
)

func newTestTokenizer(t *testing.T) *JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key).(*JWTTokenizer)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	now := time.Now().Truncate(time.Second)
	session := &core.Session{
		ID:           "s1",
		UserID:       "u1",
		Address:      "0xabc",
		IssuedAt:     now,
		AccessExpiry: now.Add(5 * time.Minute),
		RefreshID:    "r1",
	}

	token, err := tk.SessionToAccessToken(session)
	require.NoError(t, err)

	got, err := tk.AccessTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, session.Address, got.Address)
	assert.Equal(t, session.RefreshID, got.RefreshID)
	assert.True(t, session.AccessExpiry.Equal(got.AccessExpiry))

	// Audiences keep the two token kinds apart
	_, err = tk.RefreshTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	now := time.Now().Truncate(time.Second)
	session := &core.Session{UserID: "u1", IssuedAt: now, RefreshExpiry: now.Add(time.Hour), RefreshID: "r1"}

	token, err := tk.SessionToRefreshToken(session)
	require.NoError(t, err)

	got, err := tk.RefreshTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RefreshID)
	assert.Equal(t, "u1", got.UserID)
}

func TestExpiredAccessToken(t *testing.T) {
	tk := newTestTokenizer(t)
	now := time.Now()
	token, err := tk.SessionToAccessToken(&core.Session{
		UserID:       "u1",
		IssuedAt:     now.Add(-time.Hour),
		AccessExpiry: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestForeignKeyRejected(t *testing.T) {
	issuer := newTestTokenizer(t)
	other := newTestTokenizer(t)
	now := time.Now()

	token, err := issuer.SessionToAccessToken(&core.Session{UserID: "u1", IssuedAt: now, AccessExpiry: now.Add(time.Minute)})
	require.NoError(t, err)

	_, err = other.AccessTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestDecodeUnverified(t *testing.T) {
	tk := newTestTokenizer(t)
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	token, err := tk.SessionToAccessToken(&core.Session{UserID: "u42", IssuedAt: time.Now(), AccessExpiry: exp})
	require.NoError(t, err)

	claims, err := DecodeUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, "u42", claims.UserID)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt)
	assert.Equal(t, "u42", claims.AccountID())

	_, err = DecodeUnverified("not-a-jwt")
	assert.Error(t, err)
}

func TestClaimsAccountIDFallback(t *testing.T) {
	assert.Equal(t, "sub", Claims{Subject: "sub", ID: "id"}.AccountID())
	assert.Equal(t, "id", Claims{ID: "id"}.AccountID())
	assert.Equal(t, "", Claims{}.AccountID())
}
