package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

const defaultPrefix = "trustlayer:"

// RedisCredentialStore keeps the credential under "<prefix><scope>:accessToken"
// and "<prefix><scope>:accessExp"
type RedisCredentialStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCredentialStore creates a credential store for one client scope
func NewRedisCredentialStore(client redis.UniversalClient, scope string) ports.CredentialStore {
	return &RedisCredentialStore{
		client: client,
		prefix: defaultPrefix + scope + ":",
	}
}

// Save writes both keys in one transaction so readers never see a mixed pair
func (s *RedisCredentialStore) Save(ctx context.Context, cred core.AccessCredential) error {
	ttl := time.Until(cred.Expiry())
	if ttl <= 0 {
		return core.ErrInvalidCredential
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.prefix+KeyAccessToken, cred.Token, ttl)
		pipe.Set(ctx, s.prefix+KeyAccessExp, strconv.FormatInt(cred.ExpiresAt, 10), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Load reads both keys
func (s *RedisCredentialStore) Load(ctx context.Context) (core.AccessCredential, bool, error) {
	vals, err := s.client.MGet(ctx, s.prefix+KeyAccessToken, s.prefix+KeyAccessExp).Result()
	if err != nil {
		return core.AccessCredential{}, false, fmt.Errorf("failed to load credential: %w", err)
	}
	token, _ := vals[0].(string)
	exp, _ := vals[1].(string)
	return decodeCredential(token, exp)
}

// Clear deletes both keys
func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.prefix+KeyAccessToken, s.prefix+KeyAccessExp).Err(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// RedisRevocationStore is a Redis implementation of ports.RevocationStore
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore creates a new Redis revocation store
func NewRedisRevocationStore(client redis.UniversalClient) ports.RevocationStore {
	return &RedisRevocationStore{
		client: client,
		prefix: defaultPrefix + "revoked:",
	}
}

// Revoke marks a token as revoked in Redis
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+tokenID, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks if a token is revoked in Redis
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return val > 0, nil
}

// RedisNonceLedger stores issued nonces with their TTL and consumes them with GETDEL
type RedisNonceLedger struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNonceLedger creates a new Redis nonce ledger
func NewRedisNonceLedger(client redis.UniversalClient) ports.NonceLedger {
	return &RedisNonceLedger{
		client: client,
		prefix: defaultPrefix + "nonce:",
	}
}

// Remember records a nonce; a nonce that is already live is refused
func (l *RedisNonceLedger) Remember(ctx context.Context, nonce, holder string, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.prefix+nonce, holder, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to remember nonce: %w", err)
	}
	if !ok {
		return core.ErrInvalidChallenge
	}
	return nil
}

// Consume atomically reads and deletes the nonce
func (l *RedisNonceLedger) Consume(ctx context.Context, nonce string) (string, error) {
	holder, err := l.client.GetDel(ctx, l.prefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrInvalidChallenge
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume nonce: %w", err)
	}
	return holder, nil
}

// RedisContractRepository stores contract records as JSON documents
type RedisContractRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisContractRepository creates a new Redis contract repository
func NewRedisContractRepository(client redis.UniversalClient) ports.ContractRepository {
	return &RedisContractRepository{
		client: client,
		prefix: defaultPrefix + "contract:",
	}
}

// Get loads a contract record
func (r *RedisContractRepository) Get(ctx context.Context, id string) (*core.ContractEscrow, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	var c core.ContractEscrow
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode contract: %w", err)
	}
	return &c, nil
}

// Save writes a contract record without expiry
func (r *RedisContractRepository) Save(ctx context.Context, c *core.ContractEscrow) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+c.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// Delete removes a contract record
func (r *RedisContractRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return nil
}
