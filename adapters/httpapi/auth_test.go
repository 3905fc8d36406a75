package httpapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/core"
)

func TestRefresh(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    core.AccessCredential
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"accessToken":"a","accessExp":1700000000}`, want: core.AccessCredential{Token: "a", ExpiresAt: 1700000000}},
		{name: "missing expiry", status: http.StatusOK, body: `{"accessToken":"a"}`, wantErr: true},
		{name: "missing token", status: http.StatusOK, body: `{"accessExp":1700000000}`, wantErr: true},
		{name: "rejected", status: http.StatusUnauthorized, body: `{"messageCode":"TOKEN_INVALIDATED"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/auth/refresh", r.URL.Path)
				assert.Empty(t, r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			cred, err := NewAuthClient(c).Refresh(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cred)
		})
	}
}

func TestSessionCookieCarriesAcrossCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/callback":
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r1", Path: "/", HttpOnly: true})
			w.Write([]byte(`{"accessToken":"a1","accessExp":1700000000,"nextStep":"DID"}`))
		case "/api/auth/refresh":
			cookie, err := r.Cookie("refresh_token")
			if err != nil || cookie.Value != "r1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"accessToken":"a2","accessExp":1700000100}`))
		}
	})
	auth := NewAuthClient(c)
	ctx := context.Background()

	cred, next, err := auth.ExchangeLoginCode(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "a1", cred.Token)
	assert.Equal(t, core.NextStepDID, next)

	cred, err = auth.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", cred.Token)
}

func TestMe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    *core.Profile
		wantErr error
	}{
		{
			name:   "top level flags",
			status: http.StatusOK,
			body:   `{"userId":"u","address":"0x1","kyc":true,"did":true}`,
			want:   &core.Profile{UserID: "u", Address: "0x1", KYCComplete: true, DIDComplete: true},
		},
		{
			name:   "nested status",
			status: http.StatusOK,
			body:   `{"userId":"u","status":{"kyc":true,"did":false}}`,
			want:   &core.Profile{UserID: "u", KYCComplete: true},
		},
		{name: "missing", status: http.StatusNotFound, body: `{}`, wantErr: core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer explicit", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			// the token source must not be consulted
			c.UseTokens(&staticTokens{})

			p, err := NewAuthClient(c).Me(context.Background(), "explicit")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestLoginCodeRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"messageCode": "INVALID_CODE"})
	})
	_, _, err := NewAuthClient(c).ExchangeLoginCode(context.Background(), "bad")
	var svcErr *core.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "INVALID_CODE", svcErr.Code)
	assert.Equal(t, http.StatusBadRequest, svcErr.Status)
}
