package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

func testConfig() config.Config {
	return config.Config{
		BaseURL:               "http://localhost:8090",
		TikTokRedirectBaseURL: "https://tunnel.example.com",
		YouTubeClientID:       "yt-id",
		YouTubeClientSecret:   "yt-secret",
		FacebookAppID:         "fb-id",
		FacebookAppSecret:     "fb-secret",
		FacebookPageID:        "page-1",
		TikTokClientKey:       "tt-key",
		TikTokClientSecret:    "tt-secret",
		SnapchatClientID:      "sc-id",
		SnapchatClientSecret:  "sc-secret",
	}
}

func TestNewRegistry_AllPlatforms(t *testing.T) {
	reg := NewRegistry(testConfig())
	require.Equal(t, []oauth.Platform{
		oauth.PlatformFacebook,
		oauth.PlatformSnapchat,
		oauth.PlatformTikTok,
		oauth.PlatformYouTube,
	}, reg.Platforms())

	yt, err := reg.Get(oauth.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8090/oauth2callback/youtube", yt.RedirectURI)
	require.Equal(t, "offline", yt.ExtraAuthParams["access_type"])
	require.False(t, yt.PKCE)

	tt, err := reg.Get(oauth.PlatformTikTok)
	require.NoError(t, err)
	require.True(t, tt.PKCE)
	require.Equal(t, "tt-key", tt.ClientKey)
	require.Equal(t, ",", tt.ScopeDelimiter)
	require.Equal(t, "https://tunnel.example.com/oauth2callback/tiktok", tt.RedirectURI)

	fb, err := reg.Get(oauth.PlatformFacebook)
	require.NoError(t, err)
	require.Equal(t, "page-1", fb.PageID)
}

func TestRegistry_GetReturnsCopies(t *testing.T) {
	reg := NewRegistry(testConfig())
	yt, err := reg.Get(oauth.PlatformYouTube)
	require.NoError(t, err)
	yt.Scopes[0] = "tampered"
	yt.ExtraAuthParams["prompt"] = "none"

	again, err := reg.Get(oauth.PlatformYouTube)
	require.NoError(t, err)
	require.NotEqual(t, "tampered", again.Scopes[0])
	require.Equal(t, "consent", again.ExtraAuthParams["prompt"])
}

func TestRegistry_Unsupported(t *testing.T) {
	reg := NewRegistryFrom(nil)
	_, err := reg.Get(oauth.PlatformYouTube)
	require.ErrorIs(t, err, oauth.ErrUnsupportedPlatform)
	require.False(t, reg.Supports(oauth.PlatformYouTube))

	var nilReg *Registry
	_, err = nilReg.Get(oauth.PlatformYouTube)
	require.ErrorIs(t, err, oauth.ErrUnsupportedPlatform)
}
