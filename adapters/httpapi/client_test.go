package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/core"
)

type staticTokens struct {
	cred      core.AccessCredential
	ok        bool
	refreshOK bool
	refreshed atomic.Int32
}

func (s *staticTokens) GetValidAccessToken(ctx context.Context) (core.AccessCredential, bool) {
	return s.cred, s.ok
}

func (s *staticTokens) RefreshOnce(ctx context.Context) bool {
	s.refreshed.Add(1)
	if s.refreshOK {
		s.cred.ExpiresAt = time.Now().Add(time.Hour).Unix()
		s.ok = true
	}
	return s.refreshOK
}

func validTokens() *staticTokens {
	return &staticTokens{cred: core.AccessCredential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour).Unix()}, ok: true}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestPrepareNormalizesResponseShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contract string
		escrow   string
	}{
		{
			name:     "nested descriptor",
			body:     `{"transaction":{"chain":"ethereum","network":"1","tx":"AQID"},"contract":"C1","escrow":"E1"}`,
			contract: "C1",
			escrow:   "E1",
		},
		{
			name:     "string transaction",
			body:     `{"transaction":"AQID","contractAddress":"C2","escrowAddress":"E2"}`,
			contract: "C2",
			escrow:   "E2",
		},
		{name: "flat tx", body: `{"tx":"AQID","network":"1"}`},
		{name: "tx b64", body: `{"txB64":"AQID"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chain/contract/create", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "3000000", body["salary"])
				w.Write([]byte(tt.body))
			})
			c.UseTokens(validTokens())

			prep, err := NewChainClient(c).Prepare(context.Background(), core.ContractCreateIntent{
				Employer: "EMP1",
				Employee: "APP1",
				Salary:   decimal.NewFromInt(3000000),
				DueDate:  time.Unix(1700000000, 0),
			})
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3}, prep.Envelope.UnsignedPayload)
			assert.Equal(t, "ethereum", prep.Descriptor.Chain)
			assert.Equal(t, tt.contract, prep.ContractAddress)
			assert.Equal(t, tt.escrow, prep.EscrowAddress)
		})
	}
}

func TestPrepareFailures(t *testing.T) {
	ctx := context.Background()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "UNAVAILABLE", "reason": "node down"})
	})
	c.UseTokens(validTokens())
	_, err := NewChainClient(c).Prepare(ctx, core.DIDInitIntent{Wallet: "0x1"})
	var chainErr *core.ChainServiceError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, http.StatusServiceUnavailable, chainErr.Status)
	assert.Equal(t, "node down", chainErr.Reason)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transaction":{"tx":"%%%"}}`))
	})
	c.UseTokens(validTokens())
	_, err = NewChainClient(c).Prepare(ctx, core.DIDInitIntent{Wallet: "0x1"})
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, http.StatusOK, chainErr.Status)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent without a token")
	})
	_, err = NewChainClient(c).Prepare(ctx, core.DIDInitIntent{Wallet: "0x1"})
	assert.Error(t, err)

	c.UseTokens(&staticTokens{})
	_, err = NewChainClient(c).SendRawTransaction(ctx, []byte{1})
	require.ErrorAs(t, err, &chainErr)
	assert.Contains(t, chainErr.Reason, core.ErrTokenExpired.Error())
}

func TestConfirmed(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr error
	}{
		{name: "confirmed", status: http.StatusOK, body: `{"confirmed":true}`, want: true},
		{name: "pending", status: http.StatusOK, body: `{"confirmed":false}`},
		{name: "unknown", status: http.StatusNotFound, body: `{}`},
		{name: "failed", status: http.StatusOK, body: `{"failed":true}`, wantErr: core.ErrTransactionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chain/tx/0xabc", r.URL.Path)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c.UseTokens(validTokens())
			ok, err := NewChainClient(c).Confirmed(context.Background(), "0xabc")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		body   string
		code   string
		reason string
	}{
		{body: `{"messageCode":"TOKEN_EXPIRED","reason":"expired"}`, code: "TOKEN_EXPIRED", reason: "expired"},
		{body: `{"error":"BAD","message":"nope"}`, code: "BAD", reason: "nope"},
		{body: `not json`, code: "Bad Request"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := decodeError(http.StatusBadRequest, []byte(tt.body))
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.reason, e.Reason)
		})
	}
	assert.NoError(t, serviceError(nil))
}
