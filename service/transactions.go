package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/ports"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = time.Second
)

// TransactionAdapter runs the prepare, sign and confirm sequence shared by the
// identity and contract flows
type TransactionAdapter struct {
	chain   ports.ChainService
	network ports.ChainNetwork
	dial    ports.NetworkDialer
	logger  *slog.Logger

	confirmTimeout time.Duration
	pollInterval   time.Duration

	// one signing operation per wallet at a time
	wallets sync.Map // ports.Wallet -> *semaphore.Weighted

	// networks opened through dial, reused per endpoint until Close
	dialMu sync.Mutex
	dialed map[string]ports.ChainNetwork
}

// TransactionOption configures a TransactionAdapter
type TransactionOption func(*TransactionAdapter)

// WithNetwork sets the network used when the envelope names no endpoint
func WithNetwork(n ports.ChainNetwork) TransactionOption {
	return func(a *TransactionAdapter) { a.network = n }
}

// WithNetworkDialer lets the adapter follow the chain service's recommended endpoint
func WithNetworkDialer(d ports.NetworkDialer) TransactionOption {
	return func(a *TransactionAdapter) { a.dial = d }
}

// WithConfirmation bounds the confirmation poll
func WithConfirmation(timeout, interval time.Duration) TransactionOption {
	return func(a *TransactionAdapter) {
		a.confirmTimeout = timeout
		a.pollInterval = interval
	}
}

// WithTransactionLogger sets the logger
func WithTransactionLogger(l *slog.Logger) TransactionOption {
	return func(a *TransactionAdapter) { a.logger = l }
}

// NewTransactionAdapter creates an adapter over a chain service
func NewTransactionAdapter(chain ports.ChainService, opts ...TransactionOption) *TransactionAdapter {
	a := &TransactionAdapter{
		chain:          chain,
		logger:         slog.Default(),
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prepare asks the chain service for an unsigned transaction. Every failure,
// including a response without payload, is a *core.ChainServiceError.
func (a *TransactionAdapter) Prepare(ctx context.Context, intent core.TxIntent) (*core.PreparedTransaction, error) {
	prep, err := a.chain.Prepare(ctx, intent)
	if err != nil {
		var chainErr *core.ChainServiceError
		if errors.As(err, &chainErr) {
			return nil, err
		}
		return nil, &core.ChainServiceError{Reason: err.Error()}
	}
	if prep == nil || len(prep.Envelope.UnsignedPayload) == 0 {
		return nil, &core.ChainServiceError{Status: 200, Reason: "response carries no unsigned transaction"}
	}

	a.logger.Debug("Transaction prepared",
		slog.String("intent", string(intent.Kind())),
		slog.String("network", prep.Envelope.NetworkID))
	return prep, nil
}

// SignAndSubmit has the wallet sign the envelope and waits for confirmation.
// A combined sign-and-send primitive is preferred; otherwise the adapter signs,
// submits and polls itself.
func (a *TransactionAdapter) SignAndSubmit(ctx context.Context, env core.ChainTransactionEnvelope, wallet ports.Wallet) (string, error) {
	caps := wallet.Capabilities()
	if !caps.Has(ports.CanSignAndSend) && !caps.Has(ports.CanSignTransaction) {
		return "", core.ErrWalletCapabilityMissing
	}

	lock := a.walletLock(wallet)
	if err := lock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer lock.Release(1)

	// Never open a signature request for a flow that is already gone
	if err := ctx.Err(); err != nil {
		return "", err
	}

	network, err := a.networkFor(ctx, env)
	if err != nil {
		return "", err
	}

	var (
		signature string
		path      string
	)
	if caps.Has(ports.CanSignAndSend) {
		path = "sign_and_send"
		signature, err = wallet.SignAndSendTransaction(ctx, env.UnsignedPayload)
		if err != nil {
			return "", fmt.Errorf("wallet sign-and-send failed: %w", err)
		}
	} else {
		path = "sign_then_submit"
		if network == nil {
			return "", fmt.Errorf("no network to submit the signed transaction to")
		}
		signed, err := wallet.SignTransaction(ctx, env.UnsignedPayload)
		if err != nil {
			return "", fmt.Errorf("wallet signing failed: %w", err)
		}
		signature, err = network.SendRawTransaction(ctx, signed)
		if err != nil {
			return "", fmt.Errorf("failed to submit transaction: %w", err)
		}
	}

	if network != nil {
		start := time.Now()
		if err := a.awaitConfirmation(ctx, network, signature); err != nil {
			return "", err
		}
		obs.ConfirmationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}

	a.logger.Info("Transaction confirmed", slog.String("signature", signature), slog.String("path", path))
	return signature, nil
}

// awaitConfirmation polls until the signature is confirmed, the poll window
// closes or ctx is cancelled
func (a *TransactionAdapter) awaitConfirmation(ctx context.Context, network ports.ChainNetwork, signature string) error {
	pctx, cancel := context.WithTimeout(ctx, a.confirmTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(a.pollInterval), 1)
	for {
		if err := limiter.Wait(pctx); err != nil {
			return a.pollError(ctx, signature)
		}

		ok, err := network.Confirmed(pctx, signature)
		switch {
		case errors.Is(err, core.ErrTransactionFailed):
			return fmt.Errorf("transaction %s: %w", signature, err)
		case err != nil:
			if pctx.Err() != nil {
				return a.pollError(ctx, signature)
			}
			a.logger.Warn("Confirmation poll failed", slog.String("signature", signature), slog.String("error", err.Error()))
		case ok:
			return nil
		}
	}
}

func (a *TransactionAdapter) pollError(ctx context.Context, signature string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("transaction %s: %w", signature, core.ErrConfirmationTimeout)
}

func (a *TransactionAdapter) networkFor(ctx context.Context, env core.ChainTransactionEnvelope) (ports.ChainNetwork, error) {
	if env.NetworkEndpoint == "" || a.dial == nil {
		return a.network, nil
	}

	a.dialMu.Lock()
	defer a.dialMu.Unlock()
	if n, ok := a.dialed[env.NetworkEndpoint]; ok {
		return n, nil
	}
	n, err := a.dial(ctx, env.NetworkEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to reach network %s: %w", env.NetworkEndpoint, err)
	}
	if a.dialed == nil {
		a.dialed = make(map[string]ports.ChainNetwork)
	}
	a.dialed[env.NetworkEndpoint] = n
	return n, nil
}

// Close releases the networks the adapter dialed itself. A network passed in
// through WithNetwork belongs to the caller and stays open.
func (a *TransactionAdapter) Close() error {
	a.dialMu.Lock()
	defer a.dialMu.Unlock()

	var errs []error
	for endpoint, n := range a.dialed {
		switch c := n.(type) {
		case io.Closer:
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close network %s: %w", endpoint, err))
			}
		case interface{ Close() }:
			c.Close()
		}
	}
	a.dialed = nil
	return errors.Join(errs...)
}

func (a *TransactionAdapter) walletLock(w ports.Wallet) *semaphore.Weighted {
	lock, _ := a.wallets.LoadOrStore(w, semaphore.NewWeighted(1))
	return lock.(*semaphore.Weighted)
}

// LoadContract reads the chain service's view of a contract account
func (a *TransactionAdapter) LoadContract(ctx context.Context, address string) (map[string]any, error) {
	state, err := a.chain.LoadContract(ctx, address)
	if err != nil {
		var chainErr *core.ChainServiceError
		if errors.As(err, &chainErr) {
			return nil, err
		}
		return nil, &core.ChainServiceError{Reason: err.Error()}
	}
	return state, nil
}
