package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/notify"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type channelMode int

const (
	channelComplete channelMode = iota
	channelPingThenComplete
	channelFail
	channelSilent
	channelHangUp
)

// fakeBroker plays the HTTP and channel side of the broker.
type fakeBroker struct {
	mu        sync.Mutex
	stored    *oauth.TokenSet
	refreshed *oauth.TokenSet
	issued    *oauth.TokenSet
	mode      channelMode
	healthy   atomic.Bool

	starts       atomic.Int32
	refreshCalls atomic.Int32
	pongs        atomic.Int32
	requests     chan notify.Event
}

func newFakeBroker(t *testing.T) (*fakeBroker, *httptest.Server) {
	t.Helper()
	b := &fakeBroker{requests: make(chan notify.Event, 4)}
	b.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !b.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})
	mux.HandleFunc("/auth/start", func(w http.ResponseWriter, r *http.Request) {
		b.starts.Add(1)
		var body struct {
			Platform string `json:"platform"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"authUrl":   "https://provider.example.com/authorize?state=" + body.Platform + ":sess-1",
			"sessionId": "sess-1",
			"platform":  body.Platform,
		})
	})
	mux.HandleFunc("/tokens/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/refresh") {
			b.refreshCalls.Add(1)
			if b.refreshed == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "error_description": "Unable to refresh tokens. Re-authorization may be required."})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "tokens": b.refreshed})
			return
		}
		if b.stored == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "error_description": "No tokens found for platform"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tokens": b.stored})
	})
	mux.Handle("/ws", websocket.Server{Handler: b.serveChannel})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBroker) serveChannel(conn *websocket.Conn) {
	defer conn.Close()
	_ = websocket.JSON.Send(conn, notify.Event{Type: notify.EventPing})

	for {
		var ev notify.Event
		if err := websocket.JSON.Receive(conn, &ev); err != nil {
			return
		}
		switch ev.Type {
		case notify.EventPong:
			b.pongs.Add(1)
		case notify.EventAuthRequest:
			b.requests <- ev
			b.mu.Lock()
			mode, issued := b.mode, b.issued
			b.mu.Unlock()
			switch mode {
			case channelComplete:
				_ = websocket.JSON.Send(conn, notify.Event{Type: notify.EventAuthRequest, Platform: ev.Platform, SessionID: ev.SessionID, AuthURL: "https://provider.example.com/authorize"})
				_ = websocket.JSON.Send(conn, notify.Event{Type: notify.EventAuthComplete, Platform: ev.Platform, SessionID: ev.SessionID, Tokens: issued})
			case channelPingThenComplete:
				_ = websocket.JSON.Send(conn, notify.Event{Type: notify.EventPing})
				var pong notify.Event
				if err := websocket.JSON.Receive(conn, &pong); err != nil {
					return
				}
				for pong.Type != notify.EventPong {
					if err := websocket.JSON.Receive(conn, &pong); err != nil {
						return
					}
				}
				b.pongs.Add(1)
				_ = websocket.JSON.Send(conn, notify.Event{Type: notify.EventAuthComplete, Platform: ev.Platform, SessionID: ev.SessionID, Tokens: issued})
			case channelFail:
				_ = websocket.JSON.Send(conn, notify.Event{Type: notify.EventAuthError, Platform: ev.Platform, SessionID: ev.SessionID, Error: "OAuth error: access_denied"})
			case channelHangUp:
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type openerSpy struct {
	mu   sync.Mutex
	urls []string
}

func (o *openerSpy) open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *openerSpy) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

func newTestClient(t *testing.T, serverURL string, opener *openerSpy, opts ...Option) *Client {
	t.Helper()
	cfg := config.ClientConfig{
		ServerURL:      serverURL,
		AuthTimeout:    5 * time.Second,
		StartupTimeout: time.Second,
		PollInterval:   10 * time.Millisecond,
	}
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithBrowserOpener(opener.open),
	}
	c, err := New(cfg, zap.NewNop(), append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadServerURL(t *testing.T) {
	_, err := New(config.ClientConfig{ServerURL: "localhost:8090"}, zap.NewNop())
	require.Error(t, err)
}

func TestAuthenticate_ReturnsValidStoredTokens(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.stored = &oauth.TokenSet{AccessToken: "stored", ExpiryDate: fixedNow.Add(time.Hour).UnixMilli()}
	opener := &openerSpy{}

	tokens, err := newTestClient(t, srv.URL, opener).Authenticate(context.Background(), oauth.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "stored", tokens.AccessToken)
	require.Zero(t, broker.starts.Load())
	require.Zero(t, broker.refreshCalls.Load())
	require.Empty(t, opener.opened())
}

func TestAuthenticate_RefreshesNearlyExpiredTokens(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.stored = &oauth.TokenSet{AccessToken: "old", RefreshToken: "r1", ExpiryDate: fixedNow.Add(time.Minute).UnixMilli()}
	broker.refreshed = &oauth.TokenSet{AccessToken: "fresh", RefreshToken: "r1"}

	tokens, err := newTestClient(t, srv.URL, &openerSpy{}).Authenticate(context.Background(), oauth.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "fresh", tokens.AccessToken)
	require.EqualValues(t, 1, broker.refreshCalls.Load())
	require.Zero(t, broker.starts.Load())
}

func TestAuthenticate_FallsBackToBrowserFlowWhenRefreshFails(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.stored = &oauth.TokenSet{AccessToken: "old", RefreshToken: "r1", ExpiryDate: fixedNow.Add(-time.Hour).UnixMilli()}
	broker.issued = &oauth.TokenSet{AccessToken: "new"}
	opener := &openerSpy{}

	tokens, err := newTestClient(t, srv.URL, opener).Authenticate(context.Background(), oauth.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "new", tokens.AccessToken)
	require.EqualValues(t, 1, broker.refreshCalls.Load())
	require.EqualValues(t, 1, broker.starts.Load())
}

func TestAuthenticate_BrowserFlow(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.issued = &oauth.TokenSet{AccessToken: "issued", RefreshToken: "r"}
	opener := &openerSpy{}

	tokens, err := newTestClient(t, srv.URL, opener).Authenticate(context.Background(), oauth.PlatformTikTok)
	require.NoError(t, err)
	require.Equal(t, "issued", tokens.AccessToken)

	req := <-broker.requests
	require.Equal(t, notify.EventAuthRequest, req.Type)
	require.Equal(t, "sess-1", req.SessionID)
	require.Equal(t, oauth.PlatformTikTok, req.Platform)
	require.Equal(t, []string{"https://provider.example.com/authorize?state=tiktok:sess-1"}, opener.opened())
	require.Zero(t, broker.refreshCalls.Load())
}

func TestAuthenticate_AnswersPingsWhileWaiting(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.mode = channelPingThenComplete
	broker.issued = &oauth.TokenSet{AccessToken: "issued"}

	tokens, err := newTestClient(t, srv.URL, &openerSpy{}).Authenticate(context.Background(), oauth.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "issued", tokens.AccessToken)
	require.GreaterOrEqual(t, broker.pongs.Load(), int32(1))
}

func TestAuthenticate_ProviderDenial(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.mode = channelFail

	_, err := newTestClient(t, srv.URL, &openerSpy{}).Authenticate(context.Background(), oauth.PlatformYouTube)
	require.ErrorIs(t, err, ErrAuthorizationFailed)
	require.Contains(t, err.Error(), "access_denied")
}

func TestAuthenticate_TimesOut(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.mode = channelSilent

	c := newTestClient(t, srv.URL, &openerSpy{})
	c.cfg.AuthTimeout = 100 * time.Millisecond

	_, err := c.Authenticate(context.Background(), oauth.PlatformYouTube)
	require.ErrorIs(t, err, ErrAuthTimeout)
}

func TestAuthenticate_ChannelClosed(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.mode = channelHangUp

	_, err := newTestClient(t, srv.URL, &openerSpy{}).Authenticate(context.Background(), oauth.PlatformYouTube)
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestAuthenticate_BrowserFailureIsNotFatal(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.issued = &oauth.TokenSet{AccessToken: "issued"}

	c := newTestClient(t, srv.URL, &openerSpy{}, WithBrowserOpener(func(context.Context, string) error {
		return errors.New("no display")
	}))
	tokens, err := c.Authenticate(context.Background(), oauth.PlatformYouTube)
	require.NoError(t, err)
	require.Equal(t, "issued", tokens.AccessToken)
}

func TestGetStoredTokens_NotFoundIsNil(t *testing.T) {
	_, srv := newFakeBroker(t)

	tokens, err := newTestClient(t, srv.URL, &openerSpy{}).GetStoredTokens(context.Background(), oauth.PlatformFacebook)
	require.NoError(t, err)
	require.Nil(t, tokens)
}

func TestRefreshTokens_NotFoundIsNil(t *testing.T) {
	broker, srv := newFakeBroker(t)

	tokens, err := newTestClient(t, srv.URL, &openerSpy{}).RefreshTokens(context.Background(), oauth.PlatformFacebook)
	require.NoError(t, err)
	require.Nil(t, tokens)
	require.EqualValues(t, 1, broker.refreshCalls.Load())
}

func TestEnsureServerRunning_AlreadyUp(t *testing.T) {
	_, srv := newFakeBroker(t)
	var started atomic.Int32

	c := newTestClient(t, srv.URL, &openerSpy{}, WithServerStarter(func(context.Context) error {
		started.Add(1)
		return nil
	}))
	require.NoError(t, c.EnsureServerRunning(context.Background()))
	require.Zero(t, started.Load())
}

func TestEnsureServerRunning_StartsAndWaits(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.healthy.Store(false)

	c := newTestClient(t, srv.URL, &openerSpy{}, WithServerStarter(func(context.Context) error {
		go func() {
			time.Sleep(30 * time.Millisecond)
			broker.healthy.Store(true)
		}()
		return nil
	}))
	require.NoError(t, c.EnsureServerRunning(context.Background()))
}

func TestEnsureServerRunning_GivesUp(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.healthy.Store(false)

	c := newTestClient(t, srv.URL, &openerSpy{}, WithServerStarter(func(context.Context) error { return nil }))
	c.cfg.StartupTimeout = 80 * time.Millisecond

	err := c.EnsureServerRunning(context.Background())
	require.ErrorIs(t, err, ErrServerUnreachable)
}

func TestWithTokens_RefreshesOnceOnUnauthorized(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.stored = &oauth.TokenSet{AccessToken: "stale"}
	broker.refreshed = &oauth.TokenSet{AccessToken: "fresh"}

	var seen []string
	err := newTestClient(t, srv.URL, &openerSpy{}).WithTokens(context.Background(), oauth.PlatformYouTube,
		func(_ context.Context, tokens *oauth.TokenSet) error {
			seen = append(seen, tokens.AccessToken)
			if tokens.AccessToken == "stale" {
				return ErrUnauthorized
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, []string{"stale", "fresh"}, seen)
	require.EqualValues(t, 1, broker.refreshCalls.Load())
}

func TestWithTokens_UnauthorizedWithoutRefresh(t *testing.T) {
	broker, srv := newFakeBroker(t)
	broker.stored = &oauth.TokenSet{AccessToken: "stale"}

	calls := 0
	err := newTestClient(t, srv.URL, &openerSpy{}).WithTokens(context.Background(), oauth.PlatformYouTube,
		func(context.Context, *oauth.TokenSet) error {
			calls++
			return ErrUnauthorized
		})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, calls)
}

func TestBrowserCommand(t *testing.T) {
	name, args := browserCommand("darwin", "https://x")
	require.Equal(t, "open", name)
	require.Equal(t, []string{"https://x"}, args)

	name, args = browserCommand("windows", "https://x")
	require.Equal(t, "cmd", name)
	require.Equal(t, []string{"/c", "start", "", "https://x"}, args)

	name, _ = browserCommand("linux", "https://x")
	require.Equal(t, "xdg-open", name)
}

func TestChannelURL(t *testing.T) {
	c, err := New(config.ClientConfig{ServerURL: "https://broker.example.com/"}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "wss://broker.example.com/ws", c.channelURL())
}
