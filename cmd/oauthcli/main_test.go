package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBroker(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/tokens/youtube", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"platform": "youtube",
			"tokens":   map[string]any{"access_token": "a1", "token_type": "Bearer"},
		})
	})
	mux.HandleFunc("/tokens/tiktok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","error_description":"No tokens found for platform"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Health(t *testing.T) {
	srv := newBroker(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-server", srv.URL, "health"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "is running")
}

func TestRun_PrintsStoredTokens(t *testing.T) {
	srv := newBroker(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-server", srv.URL, "tokens", "YouTube"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var tokens map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &tokens))
	require.Equal(t, "a1", tokens["access_token"])
}

func TestRun_NoStoredTokens(t *testing.T) {
	srv := newBroker(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-server", srv.URL, "tokens", "tiktok"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "no tokens for tiktok")
}

func TestRun_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	require.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	require.Equal(t, 2, run(context.Background(), []string{"-server", "http://127.0.0.1:1", "auth"}, &stdout, &stderr))
	require.Equal(t, 2, run(context.Background(), []string{"-server", "http://127.0.0.1:1", "auth", "myspace"}, &stdout, &stderr))
	require.Equal(t, 2, run(context.Background(), []string{"-server", "http://127.0.0.1:1", "upload", "youtube"}, &stdout, &stderr))
}
