package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/notify"
)

const (
	channelPath   = "/ws"
	healthTimeout = 2 * time.Second
)

// Client drives authorization from a CLI process against a running broker.
type Client struct {
	cfg         config.ClientConfig
	httpClient  *http.Client
	openBrowser BrowserOpener
	startServer ServerStarter
	now         func() time.Time
	logger      *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBrowserOpener replaces the OS browser launcher.
func WithBrowserOpener(open BrowserOpener) Option {
	return func(c *Client) {
		if open != nil {
			c.openBrowser = open
		}
	}
}

// WithServerStarter replaces the process launcher used by EnsureServerRunning.
func WithServerStarter(start ServerStarter) Option {
	return func(c *Client) {
		if start != nil {
			c.startServer = start
		}
	}
}

// WithClock overrides the time source used for token validity checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a Client for the broker at cfg.ServerURL.
func New(cfg config.ClientConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid server url %q", cfg.ServerURL)
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Minute
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	c := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		openBrowser: OpenBrowser,
		startServer: commandStarter(cfg.ServerCommand),
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticate returns usable credentials for platform. Stored tokens win while valid, then a
// refresh is attempted, and only then is an interactive browser flow started.
func (c *Client) Authenticate(ctx context.Context, platform oauth.Platform) (*oauth.TokenSet, error) {
	stored, err := c.GetStoredTokens(ctx, platform)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.Valid(c.now()) {
		c.log().Debug("using stored tokens", zap.String("platform", platform.String()))
		return stored, nil
	}

	if stored != nil && stored.RefreshToken != "" {
		refreshed, err := c.RefreshTokens(ctx, platform)
		if err != nil {
			c.log().Warn("token refresh failed, starting new authorization",
				zap.String("platform", platform.String()),
				zap.Error(err),
			)
		}
		if refreshed != nil {
			return refreshed, nil
		}
	}

	return c.authorize(ctx, platform)
}

type startResponse struct {
	Success   bool           `json:"success"`
	AuthURL   string         `json:"authUrl"`
	SessionID string         `json:"sessionId"`
	Platform  oauth.Platform `json:"platform"`
}

type tokensResponse struct {
	Success  bool            `json:"success"`
	Tokens   *oauth.TokenSet `json:"tokens"`
	Platform oauth.Platform  `json:"platform"`
}

func (c *Client) authorize(ctx context.Context, platform oauth.Platform) (*oauth.TokenSet, error) {
	var start startResponse
	if err := c.do(ctx, http.MethodPost, "/auth/start", map[string]string{"platform": platform.String()}, &start); err != nil {
		return nil, fmt.Errorf("start authorization: %w", err)
	}
	if start.SessionID == "" || start.AuthURL == "" {
		return nil, fmt.Errorf("start authorization: incomplete response from broker")
	}

	wsCfg, err := websocket.NewConfig(c.channelURL(), c.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("channel config: %w", err)
	}
	conn, err := wsCfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect channel: %w", err)
	}
	defer conn.Close()

	err = websocket.JSON.Send(conn, notify.Event{
		Type:      notify.EventAuthRequest,
		Platform:  platform,
		SessionID: start.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}

	c.log().Info("waiting for browser authorization",
		zap.String("platform", platform.String()),
		zap.String("session_id", start.SessionID),
		zap.String("auth_url", start.AuthURL),
	)
	if err := c.openBrowser(ctx, start.AuthURL); err != nil {
		c.log().Warn("could not open browser, visit the URL manually",
			zap.String("auth_url", start.AuthURL),
			zap.Error(err),
		)
	}

	return c.await(ctx, conn, start.SessionID)
}

func (c *Client) await(ctx context.Context, conn *websocket.Conn, sessionID string) (*oauth.TokenSet, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	events := make(chan notify.Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			var ev notify.Event
			if err := websocket.JSON.Receive(conn, &ev); err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-waitCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w after %s", ErrAuthTimeout, c.cfg.AuthTimeout)
		case err := <-readErr:
			return nil, fmt.Errorf("%w: %v", ErrChannelClosed, err)
		case ev := <-events:
			if ev.SessionID != "" && ev.SessionID != sessionID {
				continue
			}
			switch ev.Type {
			case notify.EventAuthRequest:
				c.log().Debug("session registered with broker", zap.String("session_id", sessionID))
			case notify.EventPing:
				if err := websocket.JSON.Send(conn, notify.Event{Type: notify.EventPong}); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrChannelClosed, err)
				}
			case notify.EventAuthComplete:
				if ev.Tokens == nil {
					return nil, fmt.Errorf("%w: completion carried no tokens", ErrAuthorizationFailed)
				}
				return ev.Tokens, nil
			case notify.EventAuthError:
				return nil, fmt.Errorf("%w: %s", ErrAuthorizationFailed, ev.Error)
			}
		}
	}
}

// GetStoredTokens returns the broker's stored credentials, or nil when there are none.
func (c *Client) GetStoredTokens(ctx context.Context, platform oauth.Platform) (*oauth.TokenSet, error) {
	var resp tokensResponse
	err := c.do(ctx, http.MethodGet, "/tokens/"+url.PathEscape(platform.String()), nil, &resp)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stored tokens: %w", err)
	}
	return resp.Tokens, nil
}

// RefreshTokens asks the broker to refresh platform's credentials. It returns nil tokens and no
// error when the broker cannot refresh.
func (c *Client) RefreshTokens(ctx context.Context, platform oauth.Platform) (*oauth.TokenSet, error) {
	var resp tokensResponse
	err := c.do(ctx, http.MethodPost, "/tokens/"+url.PathEscape(platform.String())+"/refresh", nil, &resp)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}
	return resp.Tokens, nil
}

// IsServerRunning checks the broker's health endpoint.
func (c *Client) IsServerRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServerURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// EnsureServerRunning starts the broker when it is not answering and waits for it to come up.
func (c *Client) EnsureServerRunning(ctx context.Context) error {
	if c.IsServerRunning(ctx) {
		return nil
	}

	c.log().Info("starting oauth broker", zap.Strings("command", c.cfg.ServerCommand))
	if err := c.startServer(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}

	deadline := time.NewTimer(c.cfg.StartupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w within %s", ErrServerUnreachable, c.cfg.StartupTimeout)
		case <-ticker.C:
			if c.IsServerRunning(ctx) {
				c.log().Info("oauth broker is up", zap.String("url", c.cfg.ServerURL))
				return nil
			}
		}
	}
}

// WithTokens runs fn with valid credentials. When fn reports ErrUnauthorized the tokens are
// refreshed once and fn is retried.
func (c *Client) WithTokens(ctx context.Context, platform oauth.Platform, fn func(context.Context, *oauth.TokenSet) error) error {
	tokens, err := c.Authenticate(ctx, platform)
	if err != nil {
		return err
	}

	err = fn(ctx, tokens)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	refreshed, rerr := c.RefreshTokens(ctx, platform)
	if rerr != nil {
		return errors.Join(err, rerr)
	}
	if refreshed == nil {
		return err
	}
	return fn(ctx, refreshed)
}

func (c *Client) channelURL() string {
	base := c.cfg.ServerURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + channelPath
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.ServerURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return zap.L()
}
