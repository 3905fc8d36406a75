package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.Auth.GraceWindow)
	assert.Equal(t, "eth", cfg.DID.Method)
	assert.Equal(t, int64(1337), cfg.Chain.ChainID)
	assert.Equal(t, "memory", cfg.Store.Driver)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"empty base url", func(c *Config) { c.Auth.BaseURL = "" }, "auth.base_url"},
		{"negative grace", func(c *Config) { c.Auth.GraceWindow = -time.Second }, "grace_window"},
		{"zero scan depth", func(c *Config) { c.DID.ScanDepth = 0 }, "scan_depth"},
		{"zero chain id", func(c *Config) { c.Chain.ChainID = 0 }, "chain_id"},
		{"zero poll", func(c *Config) { c.Chain.PollInterval = 0 }, "poll_interval"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, "store.driver"},
		{"redis without url", func(c *Config) {
			c.Store.Driver = "redis"
			c.Store.RedisURL = ""
		}, "redis_url"},
		{"events without redis", func(c *Config) {
			c.Contract.PublishEvents = true
			c.Store.RedisURL = ""
		}, "publish_events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustlayer.yaml")
	content := `
auth:
  base_url: https://api.example.com
  grace_window: 30s
chain:
  chain_id: 11155111
  rpc_url: https://rpc.example.com
store:
  driver: redis
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Auth.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Auth.GraceWindow)
	assert.Equal(t, int64(11155111), cfg.Chain.ChainID)
	assert.Equal(t, "redis", cfg.Store.Driver)
	// untouched fields keep their defaults
	assert.Equal(t, 15*time.Second, cfg.Auth.RefreshTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.RedisURL)
	assert.Equal(t, "https://api.example.com", cfg.ChainServiceURL())
	assert.Equal(t, "https://api.example.com", cfg.VerifierURL())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth: [\n"), 0o600))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(&Config{
		Auth:  AuthConfig{BaseURL: "https://other"},
		Chain: ChainConfig{ChainID: 5, ServiceURL: "https://chain"},
		Log:   LogConfig{Format: "json"},
	})

	assert.Equal(t, "https://other", cfg.Auth.BaseURL)
	assert.Equal(t, int64(5), cfg.Chain.ChainID)
	assert.Equal(t, "https://chain", cfg.ChainServiceURL())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)

	cfg.Merge(nil)
	assert.Equal(t, "https://other", cfg.Auth.BaseURL)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRUSTLAYER_AUTH_BASE_URL":       "https://env",
		"TRUSTLAYER_AUTH_GRACE_WINDOW":   "5s",
		"TRUSTLAYER_CHAIN_ID":            "42",
		"TRUSTLAYER_WALLET_KEY":          "abcd",
		"TRUSTLAYER_PUBLISH_EVENTS":      "true",
		"TRUSTLAYER_CHAIN_POLL_INTERVAL": "250ms",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg, lookup))
	assert.Equal(t, "https://env", cfg.Auth.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Auth.GraceWindow)
	assert.Equal(t, int64(42), cfg.Chain.ChainID)
	assert.Equal(t, "abcd", cfg.Wallet.PrivateKey)
	assert.True(t, cfg.Contract.PublishEvents)
	assert.Equal(t, 250*time.Millisecond, cfg.Chain.PollInterval)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	for _, kv := range [][2]string{
		{"TRUSTLAYER_CHAIN_ID", "mainnet"},
		{"TRUSTLAYER_AUTH_REFRESH_TIMEOUT", "soon"},
		{"TRUSTLAYER_PUBLISH_EVENTS", "maybe"},
	} {
		t.Run(kv[0], func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == kv[0] {
					return kv[1], true
				}
				return "", false
			}
			assert.ErrorContains(t, ApplyEnv(DefaultConfig(), lookup), kv[0])
		})
	}
}

func TestLoaderPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  base_url: https://file\nlog:\n  level: debug\n"), 0o600))

	l := NewLoader(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	l.lookup = func(k string) (string, bool) {
		if k == "TRUSTLAYER_AUTH_BASE_URL" {
			return "https://env", true
		}
		return "", false
	}

	cfg, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env", cfg.Auth.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = l.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoaderValidates(t *testing.T) {
	l := NewLoader(nil)
	l.lookup = func(k string) (string, bool) {
		if k == "TRUSTLAYER_STORE_DRIVER" {
			return "sqlite", true
		}
		return "", false
	}
	path := filepath.Join(t.TempDir(), "x.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))
	_, err := l.Load(path)
	assert.ErrorContains(t, err, "store.driver")
}
