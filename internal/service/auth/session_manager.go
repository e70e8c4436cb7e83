package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oauthadapter "github.com/7HR4IZ3/ai-video-creator/internal/adapter/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	domainoauth "github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/providers"
	"github.com/7HR4IZ3/ai-video-creator/internal/repository"
)

// SessionManager orchestrates authorization-code exchanges, refreshes and pending sessions.
type SessionManager interface {
	GenerateAuthURL(ctx context.Context, platform domainoauth.Platform) (*AuthorizationURL, error)
	HandleCallback(ctx context.Context, platform domainoauth.Platform, code, state string) (*domainoauth.TokenSet, error)
	// RefreshTokens returns nil when there is nothing to refresh or the provider rejects the grant.
	RefreshTokens(ctx context.Context, platform domainoauth.Platform) *domainoauth.TokenSet
	GetStoredTokens(ctx context.Context, platform domainoauth.Platform) (*domainoauth.TokenSet, error)
	PendingSession(sessionID string) (domainoauth.PendingSession, bool)
	// DiscardSession drops a pending session after a provider-side failure.
	DiscardSession(ctx context.Context, sessionID, reason string) bool
	SweepPendingSessions(ctx context.Context, now time.Time) int
}

// AuthorizationURL is the result of starting an authorization attempt.
type AuthorizationURL struct {
	AuthorizationURL string
	SessionID        string
	Platform         domainoauth.Platform
}

type sessionManager struct {
	registry       *providers.Registry
	store          repository.CredentialStore
	recorder       repository.AttemptRecorder
	providerClient oauthadapter.ProviderClient
	tracer         trace.Tracer
	logger         *zap.Logger

	pending    *pendingSessions
	pendingTTL time.Duration
	verifier   string
	now        func() time.Time
}

// Option customizes a SessionManager.
type Option func(*sessionManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *sessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCodeVerifier pins the PKCE verifier instead of generating one.
func WithCodeVerifier(verifier string) Option {
	return func(m *sessionManager) {
		if strings.TrimSpace(verifier) != "" {
			m.verifier = verifier
		}
	}
}

// NewSessionManager wires the session manager. The PKCE verifier is generated once and shared
// by every PKCE authorization this manager issues.
func NewSessionManager(
	registry *providers.Registry,
	store repository.CredentialStore,
	recorder repository.AttemptRecorder,
	providerClient oauthadapter.ProviderClient,
	tracer trace.Tracer,
	cfg config.Config,
	logger *zap.Logger,
	opts ...Option,
) (SessionManager, error) {
	if registry == nil || store == nil || providerClient == nil {
		return nil, errors.New("session manager: registry, store and provider client are required")
	}
	if recorder == nil {
		recorder = repository.NoopAttemptRecorder{}
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/7HR4IZ3/ai-video-creator/internal/service/auth")
	}

	m := &sessionManager{
		registry:       registry,
		store:          store,
		recorder:       recorder,
		providerClient: providerClient,
		tracer:         tracer,
		logger:         logger,
		pending:        newPendingSessions(),
		pendingTTL:     cfg.PendingSessionTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.verifier == "" {
		verifier, err := newCodeVerifier()
		if err != nil {
			return nil, err
		}
		m.verifier = verifier
	}
	return m, nil
}

func (m *sessionManager) GenerateAuthURL(ctx context.Context, platform domainoauth.Platform) (*AuthorizationURL, error) {
	ctx, span := m.startSpan(ctx, "SessionManager.GenerateAuthURL", platform)
	defer span.End()

	provider, err := m.registry.Get(platform)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	sessionID := uuid.NewString()
	params := map[string]string{
		"response_type": "code",
		"scope":         provider.JoinedScopes(),
		"redirect_uri":  provider.RedirectURI,
		"state":         domainoauth.BuildState(platform, sessionID),
	}
	if provider.PKCE {
		params["client_key"] = provider.ClientKey
		params["code_challenge"] = codeChallenge(m.verifier)
		params["code_challenge_method"] = "S256"
	} else {
		params["client_id"] = provider.ClientID
	}
	for k, v := range provider.ExtraAuthParams {
		params[k] = v
	}

	authURL, err := buildAuthorizationURL(provider.AuthURL, params)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	createdAt := m.now()
	m.pending.put(domainoauth.PendingSession{
		SessionID: sessionID,
		Platform:  platform,
		AuthURL:   authURL,
		CreatedAt: createdAt,
	})
	m.record(ctx, sessionID, platform, domainoauth.AttemptIssued, "")
	m.log().Info("authorization issued",
		zap.String("platform", platform.String()),
		zap.String("session_id", sessionID),
	)

	return &AuthorizationURL{
		AuthorizationURL: authURL,
		SessionID:        sessionID,
		Platform:         platform,
	}, nil
}

// buildAuthorizationURL merges params into the endpoint query, skipping unset values.
func buildAuthorizationURL(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse authorization url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		if isUnset(v) {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isUnset(v string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == "undefined"
}

func (m *sessionManager) HandleCallback(ctx context.Context, platform domainoauth.Platform, code, state string) (*domainoauth.TokenSet, error) {
	ctx, span := m.startSpan(ctx, "SessionManager.HandleCallback", platform)
	defer span.End()

	provider, err := m.registry.Get(platform)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	statePlatform, sessionID, ok := domainoauth.ParseState(state)
	if !ok || statePlatform != string(platform) {
		span.RecordError(domainoauth.ErrStateMismatch)
		m.log().Warn("callback state mismatch",
			zap.String("platform", platform.String()),
			zap.String("state_platform", statePlatform),
		)
		return nil, domainoauth.ErrStateMismatch
	}
	span.SetAttributes(attribute.String("oauth.session_id", sessionID))

	if _, known := m.pending.get(sessionID); !known {
		m.log().Warn("callback for unknown session",
			zap.String("platform", platform.String()),
			zap.String("session_id", sessionID),
		)
	}
	m.record(ctx, sessionID, platform, domainoauth.AttemptCallbackReceived, "")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", provider.RedirectURI)
	form.Set("client_secret", provider.ClientSecret)
	m.identify(form, provider)
	if provider.PKCE {
		form.Set("code_verifier", m.verifier)
	}

	tokens, err := m.providerClient.Exchange(ctx, provider, form)
	if err == nil && !tokens.Usable() {
		err = errors.New("provider returned no access token")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		m.log().Error("token exchange failed",
			zap.String("platform", platform.String()),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		m.fail(ctx, sessionID, platform, err)
		return nil, fmt.Errorf("%w: %s", domainoauth.ErrTokenExchangeFailed, err.Error())
	}
	m.record(ctx, sessionID, platform, domainoauth.AttemptExchanged, "")

	if platform == domainoauth.PlatformFacebook {
		pageToken, err := m.pageAccessToken(ctx, provider, tokens.AccessToken)
		if err != nil {
			m.log().Warn("continuing without facebook page token",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		} else {
			tokens.PageAccessToken = pageToken
		}
	}

	tokens.SetExpiry(m.now(), tokens.ExpiresIn)
	if err := m.store.Put(ctx, platform, *tokens); err != nil {
		span.RecordError(err)
		m.fail(ctx, sessionID, platform, err)
		return nil, fmt.Errorf("store tokens: %w", err)
	}

	m.pending.take(sessionID)
	m.record(ctx, sessionID, platform, domainoauth.AttemptStored, "")
	m.log().Info("authorization completed",
		zap.String("platform", platform.String()),
		zap.String("session_id", sessionID),
		zap.Bool("has_refresh_token", tokens.RefreshToken != ""),
	)
	return tokens, nil
}

// pageAccessToken picks the configured page, or the first one the user manages.
func (m *sessionManager) pageAccessToken(ctx context.Context, provider domainoauth.ProviderConfig, userToken string) (string, error) {
	pages, err := m.providerClient.FetchPages(ctx, userToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainoauth.ErrSecondaryLookupFailed, err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: no pages found for user", domainoauth.ErrSecondaryLookupFailed)
	}
	if provider.PageID == "" {
		return pages[0].AccessToken, nil
	}
	for _, page := range pages {
		if page.ID == provider.PageID {
			return page.AccessToken, nil
		}
	}
	return "", fmt.Errorf("%w: page %s not found in user's pages", domainoauth.ErrSecondaryLookupFailed, provider.PageID)
}

func (m *sessionManager) RefreshTokens(ctx context.Context, platform domainoauth.Platform) *domainoauth.TokenSet {
	ctx, span := m.startSpan(ctx, "SessionManager.RefreshTokens", platform)
	defer span.End()

	provider, err := m.registry.Get(platform)
	if err != nil {
		return nil
	}
	stored, err := m.store.Get(ctx, platform)
	if err != nil {
		span.RecordError(err)
		m.log().Error("load stored tokens", zap.String("platform", platform.String()), zap.Error(err))
		return nil
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", stored.RefreshToken)
	form.Set("client_secret", provider.ClientSecret)
	m.identify(form, provider)

	tokens, err := m.providerClient.Exchange(ctx, provider, form)
	if err == nil && !tokens.Usable() {
		err = errors.New("provider returned no access token")
	}
	if err != nil {
		span.RecordError(err)
		m.log().Warn("token refresh failed",
			zap.String("platform", platform.String()),
			zap.Error(fmt.Errorf("%w: %v", domainoauth.ErrRefreshFailed, err)),
		)
		return nil
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = stored.RefreshToken
	}
	tokens.SetExpiry(m.now(), tokens.ExpiresIn)
	if err := m.store.Put(ctx, platform, *tokens); err != nil {
		span.RecordError(err)
		m.log().Error("persist refreshed tokens", zap.String("platform", platform.String()), zap.Error(err))
		return nil
	}
	m.log().Info("tokens refreshed", zap.String("platform", platform.String()))
	return tokens
}

func (m *sessionManager) GetStoredTokens(ctx context.Context, platform domainoauth.Platform) (*domainoauth.TokenSet, error) {
	ctx, span := m.startSpan(ctx, "SessionManager.GetStoredTokens", platform)
	defer span.End()

	tokens, err := m.store.Get(ctx, platform)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return tokens, nil
}

func (m *sessionManager) PendingSession(sessionID string) (domainoauth.PendingSession, bool) {
	return m.pending.get(sessionID)
}

func (m *sessionManager) DiscardSession(ctx context.Context, sessionID, reason string) bool {
	session, ok := m.pending.get(sessionID)
	if !ok || !m.pending.take(sessionID) {
		return false
	}
	m.record(ctx, sessionID, session.Platform, domainoauth.AttemptFailed, reason)
	return true
}

// SweepPendingSessions drops sessions older than the configured TTL. A zero TTL disables sweeping.
func (m *sessionManager) SweepPendingSessions(ctx context.Context, now time.Time) int {
	if m.pendingTTL <= 0 {
		return 0
	}
	expired := m.pending.sweep(now.Add(-m.pendingTTL))
	for _, session := range expired {
		m.record(ctx, session.SessionID, session.Platform, domainoauth.AttemptFailed, "abandoned")
	}
	if len(expired) > 0 {
		m.log().Info("swept abandoned sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// identify adds client_key for PKCE providers and client_id for the rest.
func (m *sessionManager) identify(form url.Values, provider domainoauth.ProviderConfig) {
	if provider.PKCE {
		form.Set("client_key", provider.ClientKey)
		return
	}
	form.Set("client_id", provider.ClientID)
}

func (m *sessionManager) fail(ctx context.Context, sessionID string, platform domainoauth.Platform, cause error) {
	m.pending.take(sessionID)
	m.record(ctx, sessionID, platform, domainoauth.AttemptFailed, cause.Error())
}

func (m *sessionManager) record(ctx context.Context, sessionID string, platform domainoauth.Platform, state domainoauth.AttemptState, errText string) {
	err := m.recorder.Record(ctx, domainoauth.Attempt{
		SessionID:  sessionID,
		Platform:   platform,
		State:      state,
		Error:      errText,
		RecordedAt: m.now().UTC(),
	})
	if err != nil {
		m.log().Warn("record attempt",
			zap.String("session_id", sessionID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

func (m *sessionManager) startSpan(ctx context.Context, name string, platform domainoauth.Platform) (context.Context, trace.Span) {
	if m == nil || m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("oauth.platform", platform.String())))
}

func (m *sessionManager) log() *zap.Logger {
	if m != nil && m.logger != nil {
		return m.logger
	}
	return zap.L()
}
