package oauth

import (
	"strings"
	"time"
)

// Platform identifies an upload target that authorizes through OAuth.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformTikTok   Platform = "tiktok"
	PlatformSnapchat Platform = "snapchat"
)

// Platforms lists every platform the broker knows about, in display order.
var Platforms = []Platform{PlatformYouTube, PlatformFacebook, PlatformTikTok, PlatformSnapchat}

// ParsePlatform normalizes raw input into a known Platform.
func ParsePlatform(raw string) (Platform, error) {
	candidate := Platform(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range Platforms {
		if p == candidate {
			return p, nil
		}
	}
	return "", ErrUnsupportedPlatform
}

func (p Platform) String() string {
	return string(p)
}

// ProviderConfig stores the OAuth endpoints and credentials for a single platform.
type ProviderConfig struct {
	Platform     Platform
	ClientID     string
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// ScopeDelimiter joins Scopes in the authorization URL.
	ScopeDelimiter string
	AuthURL        string
	TokenURL       string
	// PKCE providers identify with client_key and send an S256 code challenge.
	PKCE bool
	// ExtraAuthParams are appended verbatim to the authorization URL.
	ExtraAuthParams map[string]string
	// PageID selects the managed Facebook page; empty picks the first one.
	PageID string
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (c ProviderConfig) Clone() ProviderConfig {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	if c.ExtraAuthParams != nil {
		out.ExtraAuthParams = make(map[string]string, len(c.ExtraAuthParams))
		for k, v := range c.ExtraAuthParams {
			out.ExtraAuthParams[k] = v
		}
	}
	return out
}

// JoinedScopes renders the scopes with the provider's delimiter.
func (c ProviderConfig) JoinedScopes() string {
	delim := c.ScopeDelimiter
	if delim == "" {
		delim = " "
	}
	return strings.Join(c.Scopes, delim)
}

// PendingSession tracks an issued authorization URL until its callback arrives.
type PendingSession struct {
	SessionID string
	Platform  Platform
	AuthURL   string
	CreatedAt time.Time
}

// ValidityMargin is how far in the future an expiry must be for a token to count as valid.
const ValidityMargin = 5 * time.Minute

// TokenSet is the credential bundle persisted per platform.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	// ExpiresIn is the provider-reported lifetime in seconds, when known.
	ExpiresIn int64 `json:"expires_in,omitempty"`
	// ExpiryDate is the absolute expiry in Unix milliseconds.
	ExpiryDate      int64  `json:"expiry_date,omitempty"`
	PageAccessToken string `json:"page_access_token,omitempty"`
}

// HasExpiry reports whether an absolute expiry is known.
func (t TokenSet) HasExpiry() bool {
	return t.ExpiryDate > 0
}

// Expiry returns the absolute expiry, or the zero time when unknown.
func (t TokenSet) Expiry() time.Time {
	if !t.HasExpiry() {
		return time.Time{}
	}
	return time.UnixMilli(t.ExpiryDate)
}

// SetExpiry stamps ExpiryDate from an issue time and a lifetime in seconds.
func (t *TokenSet) SetExpiry(issuedAt time.Time, lifetimeSeconds int64) {
	if lifetimeSeconds <= 0 {
		return
	}
	t.ExpiresIn = lifetimeSeconds
	t.ExpiryDate = issuedAt.Add(time.Duration(lifetimeSeconds) * time.Second).UnixMilli()
}

// Usable reports whether an access token is present at all.
func (t TokenSet) Usable() bool {
	return strings.TrimSpace(t.AccessToken) != ""
}

// Valid applies the expiry margin: usable, and either no expiry or one beyond now+ValidityMargin.
func (t TokenSet) Valid(now time.Time) bool {
	if !t.Usable() {
		return false
	}
	if !t.HasExpiry() {
		return true
	}
	return t.Expiry().After(now.Add(ValidityMargin))
}

// AttemptState is a step of a single authorization attempt.
type AttemptState string

const (
	AttemptIssued           AttemptState = "issued"
	AttemptCallbackReceived AttemptState = "callback-received"
	AttemptExchanged        AttemptState = "exchanged"
	AttemptStored           AttemptState = "stored"
	AttemptFailed           AttemptState = "failed"
)

// Attempt is one recorded transition of an authorization attempt.
type Attempt struct {
	SessionID  string
	Platform   Platform
	State      AttemptState
	Error      string
	RecordedAt time.Time
}

// FacebookPage is a page the authorizing user can manage.
type FacebookPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}
