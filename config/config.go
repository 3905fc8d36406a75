// Package config provides configuration loading for the trust layer client
// and sandbox.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration
type Config struct {
	Auth     AuthConfig     `yaml:"auth"`
	DID      DIDConfig      `yaml:"did"`
	Chain    ChainConfig    `yaml:"chain"`
	Contract ContractConfig `yaml:"contract"`
	Store    StoreConfig    `yaml:"store"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Log      LogConfig      `yaml:"log"`
}

// AuthConfig configures the session authority client
type AuthConfig struct {
	// BaseURL is the root of the auth, DID and job board APIs
	BaseURL string `yaml:"base_url"`
	// GraceWindow is how early before expiry a token is refreshed
	GraceWindow time.Duration `yaml:"grace_window"`
	// RefreshTimeout bounds one refresh call
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	// Scope names the stored credential
	Scope string `yaml:"scope"`
}

// DIDConfig configures the challenge-response flow
type DIDConfig struct {
	// BaseURL overrides auth.base_url for the verifier
	BaseURL   string `yaml:"base_url"`
	Method    string `yaml:"method"`
	Domain    string `yaml:"domain"`
	ScanDepth int    `yaml:"scan_depth"`
}

// ChainConfig configures the chain service and network
type ChainConfig struct {
	// ServiceURL is the chain service root (defaults to auth.base_url)
	ServiceURL string `yaml:"service_url"`
	// RPCURL submits transactions directly instead of relaying them
	RPCURL         string        `yaml:"rpc_url"`
	ChainID        int64         `yaml:"chain_id"`
	Registry       string        `yaml:"registry"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// ContractConfig configures the escrow signing flow
type ContractConfig struct {
	ReviewWindow time.Duration `yaml:"review_window"`
	ReviewPath   string        `yaml:"review_path"`
	// PublishEvents sends transitions to the redis stream
	PublishEvents bool `yaml:"publish_events"`
}

// StoreConfig selects storage backends
type StoreConfig struct {
	// Driver is "memory" or "redis"
	Driver   string `yaml:"driver"`
	RedisURL string `yaml:"redis_url"`
	// PostgresDSN moves contract records to Postgres when set
	PostgresDSN string `yaml:"postgres_dsn"`
}

// WalletConfig holds the local signing key
type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
}

// SandboxConfig configures the local service stand-in
type SandboxConfig struct {
	Listen        string `yaml:"listen"`
	SecureCookies bool   `yaml:"secure_cookies"`
	// SigningKey is a hex P-256 key for session tokens; generated when empty
	SigningKey string `yaml:"signing_key"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			BaseURL:        "http://localhost:8080",
			GraceWindow:    10 * time.Second,
			RefreshTimeout: 15 * time.Second,
			Scope:          "default",
		},
		DID: DIDConfig{
			Method:    "eth",
			Domain:    "localhost",
			ScanDepth: 8,
		},
		Chain: ChainConfig{
			ChainID:        1337,
			Registry:       "0x00000000000000000000000000000000000000aa",
			ConfirmTimeout: 60 * time.Second,
			PollInterval:   time.Second,
		},
		Contract: ContractConfig{
			ReviewWindow: 3 * 24 * time.Hour,
			ReviewPath:   "/contracts/review",
		},
		Store: StoreConfig{
			Driver:   "memory",
			RedisURL: "redis://localhost:6379/0",
		},
		Sandbox: SandboxConfig{
			Listen: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.BaseURL == "" {
		return fmt.Errorf("auth.base_url is required")
	}
	if c.Auth.GraceWindow < 0 {
		return fmt.Errorf("auth.grace_window must not be negative")
	}
	if c.Auth.RefreshTimeout <= 0 {
		return fmt.Errorf("auth.refresh_timeout must be positive")
	}
	if c.DID.ScanDepth <= 0 {
		return fmt.Errorf("did.scan_depth must be positive")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if c.Chain.ConfirmTimeout <= 0 || c.Chain.PollInterval <= 0 {
		return fmt.Errorf("chain.confirm_timeout and chain.poll_interval must be positive")
	}
	if c.Contract.ReviewWindow <= 0 {
		return fmt.Errorf("contract.review_window must be positive")
	}
	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory or redis, got %q", c.Store.Driver)
	}
	if c.Contract.PublishEvents && c.Store.RedisURL == "" {
		return fmt.Errorf("contract.publish_events needs store.redis_url")
	}
	return nil
}

// VerifierURL is the DID verifier root
func (c *Config) VerifierURL() string {
	if c.DID.BaseURL != "" {
		return c.DID.BaseURL
	}
	return c.Auth.BaseURL
}

// ChainServiceURL is the chain service root
func (c *Config) ChainServiceURL() string {
	if c.Chain.ServiceURL != "" {
		return c.Chain.ServiceURL
	}
	return c.Auth.BaseURL
}

// LoadFromFile loads configuration from a YAML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	mergeString(&c.Auth.BaseURL, other.Auth.BaseURL)
	mergeDuration(&c.Auth.GraceWindow, other.Auth.GraceWindow)
	mergeDuration(&c.Auth.RefreshTimeout, other.Auth.RefreshTimeout)
	mergeString(&c.Auth.Scope, other.Auth.Scope)

	mergeString(&c.DID.BaseURL, other.DID.BaseURL)
	mergeString(&c.DID.Method, other.DID.Method)
	mergeString(&c.DID.Domain, other.DID.Domain)
	if other.DID.ScanDepth != 0 {
		c.DID.ScanDepth = other.DID.ScanDepth
	}

	mergeString(&c.Chain.ServiceURL, other.Chain.ServiceURL)
	mergeString(&c.Chain.RPCURL, other.Chain.RPCURL)
	if other.Chain.ChainID != 0 {
		c.Chain.ChainID = other.Chain.ChainID
	}
	mergeString(&c.Chain.Registry, other.Chain.Registry)
	mergeDuration(&c.Chain.ConfirmTimeout, other.Chain.ConfirmTimeout)
	mergeDuration(&c.Chain.PollInterval, other.Chain.PollInterval)

	mergeDuration(&c.Contract.ReviewWindow, other.Contract.ReviewWindow)
	mergeString(&c.Contract.ReviewPath, other.Contract.ReviewPath)
	c.Contract.PublishEvents = c.Contract.PublishEvents || other.Contract.PublishEvents

	mergeString(&c.Store.Driver, other.Store.Driver)
	mergeString(&c.Store.RedisURL, other.Store.RedisURL)
	mergeString(&c.Store.PostgresDSN, other.Store.PostgresDSN)

	mergeString(&c.Wallet.PrivateKey, other.Wallet.PrivateKey)

	mergeString(&c.Sandbox.Listen, other.Sandbox.Listen)
	c.Sandbox.SecureCookies = c.Sandbox.SecureCookies || other.Sandbox.SecureCookies
	mergeString(&c.Sandbox.SigningKey, other.Sandbox.SigningKey)

	mergeString(&c.Log.Level, other.Log.Level)
	mergeString(&c.Log.Format, other.Log.Format)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
