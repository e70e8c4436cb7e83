package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/repository"
)

const (
	fieldAccessToken     = "access_token"
	fieldRefreshToken    = "refresh_token"
	fieldExpiryDate      = "expiry_date"
	fieldTokenType       = "token_type"
	fieldScope           = "scope"
	fieldPageAccessToken = "page_access_token"

	defaultTokenType = "Bearer"
	// accessTokenSkew evicts the access token a minute ahead of its real expiry.
	accessTokenSkew = 60 * time.Second
)

// RedisCredentialStore implements CredentialStore with one Redis key per token field.
type RedisCredentialStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ repository.CredentialStore = (*RedisCredentialStore)(nil)

// NewRedisCredentialStore constructs a Redis-backed credential store.
func NewRedisCredentialStore(client redis.UniversalClient) *RedisCredentialStore {
	return &RedisCredentialStore{client: client, now: time.Now}
}

func fieldKey(platform oauth.Platform, field string) string {
	return string(platform) + ":" + field
}

// Put writes every non-empty field. Fields absent from tokens keep their previous values.
func (s *RedisCredentialStore) Put(ctx context.Context, platform oauth.Platform, tokens oauth.TokenSet) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if tokens.AccessToken != "" {
			pipe.Set(ctx, fieldKey(platform, fieldAccessToken), tokens.AccessToken, s.accessTokenTTL(tokens))
		}
		if tokens.HasExpiry() {
			pipe.Set(ctx, fieldKey(platform, fieldExpiryDate), strconv.FormatInt(tokens.ExpiryDate, 10), 0)
		}
		if tokens.RefreshToken != "" {
			pipe.Set(ctx, fieldKey(platform, fieldRefreshToken), tokens.RefreshToken, 0)
		}
		if tokens.TokenType != "" {
			pipe.Set(ctx, fieldKey(platform, fieldTokenType), tokens.TokenType, 0)
		}
		if tokens.Scope != "" {
			pipe.Set(ctx, fieldKey(platform, fieldScope), tokens.Scope, 0)
		}
		if tokens.PageAccessToken != "" {
			pipe.Set(ctx, fieldKey(platform, fieldPageAccessToken), tokens.PageAccessToken, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	return nil
}

// accessTokenTTL is expiry-now-60s; zero (no expiry) when that has already elapsed.
func (s *RedisCredentialStore) accessTokenTTL(tokens oauth.TokenSet) time.Duration {
	if !tokens.HasExpiry() {
		return 0
	}
	ttl := tokens.Expiry().Sub(s.now()) - accessTokenSkew
	// Redis expirations have second granularity.
	ttl = ttl.Truncate(time.Second)
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// Get rebuilds a token set from whichever fields are still present.
func (s *RedisCredentialStore) Get(ctx context.Context, platform oauth.Platform) (*oauth.TokenSet, error) {
	fields := []string{
		fieldAccessToken,
		fieldRefreshToken,
		fieldExpiryDate,
		fieldTokenType,
		fieldScope,
		fieldPageAccessToken,
	}
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = fieldKey(platform, f)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	got := make(map[string]string, len(fields))
	for i, v := range values {
		if str, ok := v.(string); ok && str != "" {
			got[fields[i]] = str
		}
	}

	if got[fieldAccessToken] == "" && got[fieldRefreshToken] == "" {
		return nil, nil
	}

	tokens := &oauth.TokenSet{
		AccessToken:     got[fieldAccessToken],
		RefreshToken:    got[fieldRefreshToken],
		TokenType:       got[fieldTokenType],
		Scope:           got[fieldScope],
		PageAccessToken: got[fieldPageAccessToken],
	}
	if tokens.TokenType == "" {
		tokens.TokenType = defaultTokenType
	}
	if raw := got[fieldExpiryDate]; raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tokens.ExpiryDate = ms
		}
	}
	return tokens, nil
}
