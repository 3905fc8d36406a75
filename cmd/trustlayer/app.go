package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/talentbridge/trustlayer/adapters/chainrpc"
	"github.com/talentbridge/trustlayer/adapters/events"
	"github.com/talentbridge/trustlayer/adapters/httpapi"
	"github.com/talentbridge/trustlayer/adapters/store"
	"github.com/talentbridge/trustlayer/adapters/wallet"
	"github.com/talentbridge/trustlayer/config"
	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/ports"
	"github.com/talentbridge/trustlayer/service"
)

// app holds the wired client for one command invocation
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	auth   *httpapi.AuthClient
	did    *httpapi.DIDClient
	chain  *httpapi.ChainClient
	notify *httpapi.NotifyClient
	jobs   *httpapi.JobsClient

	tokens    *service.TokenManager
	wallet    *wallet.LocalWallet
	tx        *service.TransactionAdapter
	events    ports.EventPublisher
	contracts ports.ContractRepository

	closers []func() error
}

func (g *globals) open(ctx context.Context) (*app, error) {
	cfg, err := config.NewLoader(nil).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Merge(&config.Config{Log: config.LogConfig{Level: g.logLevel}})
	logger := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	var rdb *redis.Client
	if cfg.Store.Driver == "redis" || cfg.Contract.PublishEvents {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		a.closers = append(a.closers, rdb.Close)
	}

	authHTTP, err := httpapi.New(cfg.Auth.BaseURL, httpapi.WithLogger(a.logger))
	if err != nil {
		return err
	}
	didHTTP, err := a.clientFor(authHTTP, cfg.VerifierURL())
	if err != nil {
		return err
	}
	chainHTTP, err := a.clientFor(authHTTP, cfg.ChainServiceURL())
	if err != nil {
		return err
	}

	a.auth = httpapi.NewAuthClient(authHTTP)
	a.notify = httpapi.NewNotifyClient(authHTTP)
	a.jobs = httpapi.NewJobsClient(authHTTP)
	a.did = httpapi.NewDIDClient(didHTTP)
	a.chain = httpapi.NewChainClient(chainHTTP)

	var creds ports.CredentialStore = store.NewMemoryCredentialStore()
	if cfg.Store.Driver == "redis" {
		creds = store.NewRedisCredentialStore(rdb, cfg.Auth.Scope)
	}
	a.tokens = service.NewTokenManager(creds, a.auth,
		service.WithGraceWindow(cfg.Auth.GraceWindow),
		service.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
		service.WithScope(cfg.Auth.Scope),
		service.WithTokenLogger(a.logger))
	for _, c := range []*httpapi.Client{authHTTP, didHTTP, chainHTTP} {
		c.UseTokens(a.tokens)
	}

	txOpts := []service.TransactionOption{
		service.WithConfirmation(cfg.Chain.ConfirmTimeout, cfg.Chain.PollInterval),
		service.WithTransactionLogger(a.logger),
	}
	var walletOpts []wallet.Option
	if cfg.Chain.RPCURL != "" {
		network, err := chainrpc.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { network.Close(); return nil })
		txOpts = append(txOpts, service.WithNetwork(network))
		walletOpts = append(walletOpts, wallet.WithBroadcast(network))
	} else {
		// relay through the chain service unless it names an endpoint
		txOpts = append(txOpts, service.WithNetwork(a.chain), service.WithNetworkDialer(chainrpc.Dialer))
	}
	a.tx = service.NewTransactionAdapter(a.chain, txOpts...)
	a.closers = append(a.closers, a.tx.Close)

	chainID := big.NewInt(cfg.Chain.ChainID)
	if cfg.Wallet.PrivateKey != "" {
		a.wallet, err = wallet.FromHex(cfg.Wallet.PrivateKey, chainID, walletOpts...)
	} else {
		a.logger.Warn("No wallet key configured, using a throwaway key")
		a.wallet, err = wallet.Generate(chainID, walletOpts...)
	}
	if err != nil {
		return err
	}

	if cfg.Contract.PublishEvents {
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, watermill.NewStdLogger(false, false))
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		a.events = events.NewWatermillPublisher(publisher)
	}

	switch {
	case cfg.Store.PostgresDSN != "":
		db, err := sql.Open("pgx", cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := store.NewPostgresContractRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate contracts table: %w", err)
		}
		a.contracts = repo
	case cfg.Store.Driver == "redis":
		a.contracts = store.NewRedisContractRepository(rdb)
	default:
		a.contracts = store.NewMemoryContractRepository()
	}
	return nil
}

func (a *app) clientFor(shared *httpapi.Client, baseURL string) (*httpapi.Client, error) {
	if baseURL == a.cfg.Auth.BaseURL {
		return shared, nil
	}
	return httpapi.New(baseURL, httpapi.WithLogger(a.logger))
}

func (a *app) authenticator() *service.Authenticator {
	opts := []service.AuthenticatorOption{
		service.WithDIDMethod(a.cfg.DID.Method),
		service.WithDomain(a.cfg.DID.Domain),
		service.WithNonceScanDepth(a.cfg.DID.ScanDepth),
		service.WithTokenManager(a.tokens),
		service.WithAuthLogger(a.logger),
	}
	if a.events != nil {
		opts = append(opts, service.WithPhaseEvents(a.events))
	}
	registrar := service.NewChainRegistrar(a.tx, a.wallet, a.did)
	return service.NewAuthenticator(a.did, registrar, a.wallet, opts...)
}

func (a *app) contractMachine(role core.Role) *service.ContractMachine {
	opts := []service.ContractOption{
		service.WithReviewWindow(a.cfg.Contract.ReviewWindow),
		service.WithReviewPath(a.cfg.Contract.ReviewPath),
		service.WithContractNotifier(a.notify),
		service.WithContractLogger(a.logger),
	}
	if a.events != nil {
		opts = append(opts, service.WithContractEvents(a.events))
	}
	return service.NewContractMachine(role, a.contracts, a.tx, a.wallet, opts...)
}

// Close releases every opened resource, newest first
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
