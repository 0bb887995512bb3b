package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/url-relay-go/internal/app"
	"github.com/yourusername/url-relay-go/internal/domain"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 8))
	assert.Equal(t, "abcde...", truncate("abcdefghijkl", 8))
}

func TestUserPath(t *testing.T) {
	old := userID
	defer func() { userID = old }()

	userID = 42
	assert.Equal(t, "/api/v1/users/42/history", userPath("history"))
}

func withServer(t *testing.T, h http.HandlerFunc) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	old := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = old })
}

func TestCall_DecodesResponse(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(domain.Locator{Kind: domain.LocatorMagnet, Raw: body["locator"], URL: body["locator"]})
	})

	var loc domain.Locator
	require.NoError(t, call(http.MethodPost, "/api/v1/classify", map[string]string{"locator": "magnet:?xt=urn:btih:abc"}, &loc))
	assert.Equal(t, domain.LocatorMagnet, loc.Kind)
}

func TestCall_ServerError(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"You already have an active download.","kind":"already_active"}`))
	})

	err := call(http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "You already have an active download.")
	assert.Contains(t, err.Error(), "already_active")
}

func TestCall_NonJSONError(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	err := call(http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestBarSink(t *testing.T) {
	sink, finish := barSink()
	sink(domain.ProgressSample{Phase: domain.PhaseConnecting})
	sink(domain.ProgressSample{Phase: domain.PhaseDownloading, Done: 10, Total: 100})
	sink(domain.ProgressSample{Phase: domain.PhaseDownloading, Done: 100, Total: 100})
	finish()
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "url-relay", "config.yaml")

	require.NoError(t, writeDefaultConfig(path, false))
	assert.FileExists(t, path)

	loaded, err := app.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig().Server.Port, loaded.Server.Port)

	err = writeDefaultConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	assert.NoError(t, writeDefaultConfig(path, true))
}

func relayStub(t *testing.T, ready func() bool) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok","version":"1.2.0","active":3}`))
		case "/ready":
			if !ready() {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryRelay(t *testing.T) {
	var ready atomic.Bool
	srv := relayStub(t, ready.Load)

	state, err := queryRelay(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", state.Version)
	assert.Equal(t, 3, state.Active)
	assert.False(t, state.Ready)

	ready.Store(true)
	state, err = queryRelay(srv.URL)
	require.NoError(t, err)
	assert.True(t, state.Ready)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	_, err = queryRelay(down.URL)
	assert.ErrorIs(t, err, errRelayDown)
}

func TestWaitForRelay(t *testing.T) {
	var ready atomic.Bool
	srv := relayStub(t, ready.Load)

	_, err := waitForRelay(srv.URL, 100*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal is not ready")

	time.AfterFunc(30*time.Millisecond, func() { ready.Store(true) })
	state, err := waitForRelay(srv.URL, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", state.Version)
}

func TestRelayArgs(t *testing.T) {
	assert.Empty(t, relayArgs(""))
	assert.Equal(t, []string{"-config", "/etc/url-relay/config.yaml"}, relayArgs("/etc/url-relay/config.yaml"))
}
