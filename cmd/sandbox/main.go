// Package main runs the sandbox: local stand-ins for the auth, DID verifier,
// chain and notification services, served over HTTP.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/talentbridge/trustlayer/adapters/events"
	"github.com/talentbridge/trustlayer/adapters/store"
	"github.com/talentbridge/trustlayer/adapters/tokenizer"
	"github.com/talentbridge/trustlayer/config"
	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/sandbox"
	transport "github.com/talentbridge/trustlayer/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath, listen string

	cmd := &cobra.Command{
		Use:          "sandbox",
		Short:        "Serve local auth, DID, chain and notification services",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(nil).Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Merge(&config.Config{Sandbox: config.SandboxConfig{Listen: listen}})
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address override")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	obs.Init()

	signKey, err := signingKey(cfg.Sandbox.SigningKey)
	if err != nil {
		return err
	}

	deps := sandbox.Deps{
		Tokenizer: tokenizer.NewJWTTokenizer(signKey),
		Revoked:   store.NewMemoryRevocationStore(),
		Nonces:    store.NewMemoryNonceLedger(),
		Logger:    logger,
	}

	if cfg.Store.Driver == "redis" || cfg.Contract.PublishEvents {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if cfg.Store.Driver == "redis" {
			deps.Revoked = store.NewRedisRevocationStore(redisClient)
			deps.Nonces = store.NewRedisNonceLedger(redisClient)
		}
		if cfg.Contract.PublishEvents {
			publisher, err := redisstream.NewPublisher(
				redisstream.PublisherConfig{Client: redisClient},
				watermill.NewStdLogger(false, false),
			)
			if err != nil {
				return fmt.Errorf("failed to create redis publisher: %w", err)
			}
			defer publisher.Close()
			deps.Forward = events.NewWatermillPublisher(publisher)
		}
	}

	services, err := sandbox.New(deps, sandbox.ChainConfig{
		ID:       cfg.Chain.ChainID,
		Registry: cfg.Chain.Registry,
		Endpoint: cfg.Chain.RPCURL,
	})
	if err != nil {
		return err
	}

	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: cfg.Sandbox.Listen,
		Handler: transport.SetupRouter(services, transport.RouterConfig{
			SecureCookies: cfg.Sandbox.SecureCookies,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Sandbox listening", slog.String("addr", srv.Addr), slog.Int64("chain_id", cfg.Chain.ChainID))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// signingKey loads the hex P-256 session key, or generates one for this run
func signingKey(hexKey string) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	if hexKey == "" {
		return ecdsa.GenerateKey(curve, rand.Reader)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox signing key: %w", err)
	}
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, errors.New("invalid sandbox signing key: out of range")
	}
	key := &ecdsa.PrivateKey{D: d}
	key.PublicKey.Curve = curve
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(raw)
	return key, nil
}
