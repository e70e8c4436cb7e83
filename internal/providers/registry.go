package providers

import (
	"sort"

	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

// Registry maps platforms to their immutable provider configuration.
type Registry struct {
	providers map[oauth.Platform]oauth.ProviderConfig
}

// NewRegistry builds the provider table from process configuration.
func NewRegistry(cfg config.Config) *Registry {
	callback := func(base string, p oauth.Platform) string {
		return base + "/oauth2callback/" + string(p)
	}

	return NewRegistryFrom([]oauth.ProviderConfig{
		{
			Platform:     oauth.PlatformYouTube,
			ClientID:     cfg.YouTubeClientID,
			ClientSecret: cfg.YouTubeClientSecret,
			RedirectURI:  callback(cfg.BaseURL, oauth.PlatformYouTube),
			Scopes: []string{
				"https://www.googleapis.com/auth/youtube",
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube.force-ssl",
			},
			ScopeDelimiter: " ",
			AuthURL:        "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:       "https://oauth2.googleapis.com/token",
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
		},
		{
			Platform:       oauth.PlatformFacebook,
			ClientID:       cfg.FacebookAppID,
			ClientSecret:   cfg.FacebookAppSecret,
			RedirectURI:    callback(cfg.BaseURL, oauth.PlatformFacebook),
			Scopes:         []string{"pages_manage_posts", "pages_read_engagement", "pages_show_list"},
			ScopeDelimiter: " ",
			AuthURL:        "https://www.facebook.com/v18.0/dialog/oauth",
			TokenURL:       "https://graph.facebook.com/v18.0/oauth/access_token",
			PageID:         cfg.FacebookPageID,
		},
		{
			Platform:       oauth.PlatformTikTok,
			ClientKey:      cfg.TikTokClientKey,
			ClientSecret:   cfg.TikTokClientSecret,
			RedirectURI:    callback(cfg.TikTokRedirectBaseURL, oauth.PlatformTikTok),
			Scopes:         []string{"video.upload", "video.publish"},
			ScopeDelimiter: ",",
			AuthURL:        "https://www.tiktok.com/v2/auth/authorize/",
			TokenURL:       "https://open.tiktokapis.com/v2/oauth/token/",
			PKCE:           true,
		},
		{
			Platform:       oauth.PlatformSnapchat,
			ClientID:       cfg.SnapchatClientID,
			ClientSecret:   cfg.SnapchatClientSecret,
			RedirectURI:    callback(cfg.BaseURL, oauth.PlatformSnapchat),
			Scopes:         []string{"snapchat-marketing-api", "snapchat-profile-api"},
			ScopeDelimiter: " ",
			AuthURL:        "https://accounts.snapchat.com/login/oauth2/authorize",
			TokenURL:       "https://accounts.snapchat.com/login/oauth2/access_token",
		},
	})
}

// NewRegistryFrom builds a registry from explicit provider configs. Later entries win.
func NewRegistryFrom(configs []oauth.ProviderConfig) *Registry {
	r := &Registry{providers: make(map[oauth.Platform]oauth.ProviderConfig, len(configs))}
	for _, c := range configs {
		r.providers[c.Platform] = c.Clone()
	}
	return r
}

// Get returns a copy of the provider config for platform.
func (r *Registry) Get(platform oauth.Platform) (oauth.ProviderConfig, error) {
	if r == nil {
		return oauth.ProviderConfig{}, oauth.ErrUnsupportedPlatform
	}
	c, ok := r.providers[platform]
	if !ok {
		return oauth.ProviderConfig{}, oauth.ErrUnsupportedPlatform
	}
	return c.Clone(), nil
}

// Supports reports whether platform has a registered provider.
func (r *Registry) Supports(platform oauth.Platform) bool {
	_, err := r.Get(platform)
	return err == nil
}

// Platforms returns the registered platforms sorted by name.
func (r *Registry) Platforms() []oauth.Platform {
	out := make([]oauth.Platform, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
