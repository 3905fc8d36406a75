package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	// ProjectConfigFile is looked up in the working directory when no path is given
	ProjectConfigFile = "trustlayer.yaml"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "TRUSTLAYER_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	lookup func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, lookup: os.LookupEnv}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. The file at path, or trustlayer.yaml in the working directory
// 3. TRUSTLAYER_* environment variables
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = ProjectConfigFile
	}
	fileConfig, err := LoadFromFile(path)
	switch {
	case err == nil:
		l.logger.Debug("Loaded config file", slog.String("path", path))
		config = fileConfig
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, err
	default:
		l.logger.Debug("No config file found")
	}

	if err := ApplyEnv(config, l.lookup); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config fields from environment variables
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	stringVars := map[string]*string{
		"AUTH_BASE_URL":     &c.Auth.BaseURL,
		"AUTH_SCOPE":        &c.Auth.Scope,
		"DID_BASE_URL":      &c.DID.BaseURL,
		"DID_METHOD":        &c.DID.Method,
		"DID_DOMAIN":        &c.DID.Domain,
		"CHAIN_SERVICE_URL": &c.Chain.ServiceURL,
		"CHAIN_RPC_URL":     &c.Chain.RPCURL,
		"CHAIN_REGISTRY":    &c.Chain.Registry,
		"STORE_DRIVER":      &c.Store.Driver,
		"REDIS_URL":         &c.Store.RedisURL,
		"POSTGRES_DSN":      &c.Store.PostgresDSN,
		"WALLET_KEY":        &c.Wallet.PrivateKey,
		"SANDBOX_LISTEN":    &c.Sandbox.Listen,
		"SANDBOX_KEY":       &c.Sandbox.SigningKey,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FORMAT":        &c.Log.Format,
	}
	for name, dst := range stringVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"AUTH_GRACE_WINDOW":      &c.Auth.GraceWindow,
		"AUTH_REFRESH_TIMEOUT":   &c.Auth.RefreshTimeout,
		"CHAIN_CONFIRM_TIMEOUT":  &c.Chain.ConfirmTimeout,
		"CHAIN_POLL_INTERVAL":    &c.Chain.PollInterval,
		"CONTRACT_REVIEW_WINDOW": &c.Contract.ReviewWindow,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "CHAIN_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sCHAIN_ID: %w", EnvPrefix, err)
		}
		c.Chain.ChainID = id
	}
	if v, ok := lookup(EnvPrefix + "PUBLISH_EVENTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPUBLISH_EVENTS: %w", EnvPrefix, err)
		}
		c.Contract.PublishEvents = b
	}
	return nil
}
