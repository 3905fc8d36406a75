package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/credential"
	"github.com/talentbridge/trustlayer/service"
)

func TestBindWallet(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)
	s.Accounts.Ensure("u-1")
	w := newWallet(t)
	holder := core.NewDidHolder("", w.Address())

	grant, err := s.Registry.IssueNonce(ctx, w.Address())
	require.NoError(t, err)
	sig, err := w.SignMessage(ctx, []byte(grant.Nonce))
	require.NoError(t, err)
	binding := core.WalletBinding{DID: holder.Identifier, Address: w.Address(), SignatureBase58: base58.Encode(sig)}

	p, err := s.Registry.BindWallet(ctx, "u-1", binding)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), p.Address)

	// the nonce is spent
	_, err = s.Registry.BindWallet(ctx, "u-1", binding)
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)

	found, ok := s.Accounts.ByAddress(w.Address())
	require.True(t, ok)
	assert.Equal(t, "u-1", found.UserID)

	_, err = s.Registry.MarkVerified(ctx, "u-1", "")
	assert.ErrorIs(t, err, core.ErrDIDRequired)
	p, err = s.Registry.MarkVerified(ctx, "u-1", holder.Identifier)
	require.NoError(t, err)
	assert.True(t, p.DIDComplete)
}

func TestBindWalletRejectsForeignSignature(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)
	s.Accounts.Ensure("u-1")
	owner, other := newWallet(t), newWallet(t)

	grant, err := s.Registry.IssueNonce(ctx, owner.Address())
	require.NoError(t, err)
	sig, err := other.SignMessage(ctx, []byte(grant.Nonce))
	require.NoError(t, err)

	_, err = s.Registry.BindWallet(ctx, "u-1", core.WalletBinding{Address: owner.Address(), SignatureBase58: base58.Encode(sig)})
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	p, _ := s.Accounts.Get("u-1")
	assert.Empty(t, p.Address)
}

func TestIdentityRegistration(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)
	w := newWallet(t)

	_, err := s.Registry.Status(ctx, w.Address())
	assert.ErrorIs(t, err, core.ErrIdentityNotFound)
	assert.ErrorIs(t, s.Registry.AddVerificationMethod(ctx, w.Address()), core.ErrIdentityNotFound)

	require.NoError(t, s.Registry.InitIdentity(ctx, w.Address()))
	require.NoError(t, s.Registry.InitIdentity(ctx, w.Address()))
	require.NoError(t, s.Registry.AddVerificationMethod(ctx, w.Address()))

	status, err := s.Registry.Status(ctx, w.Address())
	require.NoError(t, err)
	assert.True(t, status.HasIdentity)
	assert.Equal(t, core.NewDidHolder("", w.Address()).Identifier, status.Identifier)
}

func signedChallenge(t *testing.T, s *Services, holder string, sign credential.MessageSigner) core.VerifyRequest {
	t.Helper()
	ctx := context.Background()

	raw, err := s.Registry.IssueChallenge(ctx, holder, "app.example")
	require.NoError(t, err)
	nonce, err := service.ExtractNonce(raw, service.DefaultNonceScanDepth)
	require.NoError(t, err)

	pair, err := credential.BuildSigned(ctx, credential.Subject{
		Holder: holder,
		Domain: "app.example",
		Nonce:  nonce,
	}, sign, time.Now())
	require.NoError(t, err)
	vc, vp, err := pair.Serialize()
	require.NoError(t, err)
	return core.VerifyRequest{Holder: holder, Domain: "app.example", Nonce: nonce, VC: vc, VP: vp}
}

func TestChallengeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)
	w := newWallet(t)

	req := signedChallenge(t, s, w.Address(), w)
	require.NoError(t, s.Registry.VerifyChallenge(ctx, req))

	err := s.Registry.VerifyChallenge(ctx, req)
	assert.ErrorIs(t, err, core.ErrInvalidChallenge, "nonces are single use")
}

func TestChallengeFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t)
	w, other := newWallet(t), newWallet(t)

	t.Run("signed by another wallet", func(t *testing.T) {
		req := signedChallenge(t, s, w.Address(), other)
		assert.ErrorIs(t, s.Registry.VerifyChallenge(ctx, req), core.ErrInvalidSignature)
	})

	t.Run("nonce bound to another domain", func(t *testing.T) {
		req := signedChallenge(t, s, w.Address(), w)
		req.Domain = "evil.example"
		assert.ErrorIs(t, s.Registry.VerifyChallenge(ctx, req), core.ErrInvalidChallenge)
	})

	t.Run("malformed credential", func(t *testing.T) {
		req := signedChallenge(t, s, w.Address(), w)
		req.VC = []byte(`{"type":"nope"}`)
		assert.ErrorIs(t, s.Registry.VerifyChallenge(ctx, req), core.ErrInvalidChallenge)
	})

	t.Run("missing holder", func(t *testing.T) {
		_, err := s.Registry.IssueChallenge(ctx, "", "")
		assert.ErrorIs(t, err, core.ErrInvalidChallenge)
	})
}
