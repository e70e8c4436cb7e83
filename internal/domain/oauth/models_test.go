package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenSet_Valid(t *testing.T) {
	now := time.Now()

	long := TokenSet{AccessToken: "a"}
	long.SetExpiry(now, 3600)
	require.True(t, long.Valid(now))

	short := TokenSet{AccessToken: "a"}
	short.SetExpiry(now, 200)
	require.False(t, short.Valid(now))

	require.True(t, TokenSet{AccessToken: "a"}.Valid(now), "no expiry means valid")
	require.False(t, TokenSet{RefreshToken: "r"}.Valid(now), "missing access token")
}

func TestTokenSet_SetExpiryIgnoresNonPositive(t *testing.T) {
	ts := TokenSet{AccessToken: "a"}
	ts.SetExpiry(time.Now(), 0)
	require.False(t, ts.HasExpiry())
	require.True(t, ts.Expiry().IsZero())
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" YouTube ")
	require.NoError(t, err)
	require.Equal(t, PlatformYouTube, p)

	_, err = ParsePlatform("myspace")
	require.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = ParsePlatform("")
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestStateRoundTrip(t *testing.T) {
	state := BuildState(PlatformTikTok, "abc-123")
	require.Equal(t, "tiktok:abc-123", state)

	platform, sessionID, ok := ParseState(state)
	require.True(t, ok)
	require.Equal(t, "tiktok", platform)
	require.Equal(t, "abc-123", sessionID)

	_, _, ok = ParseState("no-delimiter")
	require.False(t, ok)
	require.Equal(t, "", SessionIDFromState("no-delimiter"))
}

func TestProviderConfig_CloneIsIndependent(t *testing.T) {
	cfg := ProviderConfig{Scopes: []string{"a", "b"}, ExtraAuthParams: map[string]string{"k": "v"}}
	clone := cfg.Clone()
	clone.Scopes[0] = "changed"
	clone.ExtraAuthParams["k"] = "changed"
	require.Equal(t, "a", cfg.Scopes[0])
	require.Equal(t, "v", cfg.ExtraAuthParams["k"])
}

func TestProviderConfig_JoinedScopes(t *testing.T) {
	require.Equal(t, "a b", ProviderConfig{Scopes: []string{"a", "b"}}.JoinedScopes())
	require.Equal(t, "a,b", ProviderConfig{Scopes: []string{"a", "b"}, ScopeDelimiter: ","}.JoinedScopes())
}
