package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afrobizconnect/client-go/internal/app/domain/user"
	"github.com/afrobizconnect/client-go/internal/config"
	"github.com/afrobizconnect/client-go/internal/storage"
)

func newTestConfig(apiURL string) *config.Config {
	cfg := config.Default()
	cfg.API.BaseURL = apiURL
	cfg.Storage.Path = ""
	return cfg
}

func TestNew_WiresEveryService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{}}`)
	}))
	defer srv.Close()

	app, err := New(newTestConfig(srv.URL), WithStore(storage.NewMemory()))
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.API)
	assert.NotNil(t, app.Realtime)
	assert.NotNil(t, app.Session)
	assert.NotNil(t, app.Booking)
	assert.NotNil(t, app.Chat)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = ""
	_, err := New(cfg, WithStore(storage.NewMemory()))
	require.Error(t, err)
}

func TestRun_NoStoredSessionStartsSignedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{}}`)
	}))
	defer srv.Close()

	app, err := New(newTestConfig(srv.URL), WithStore(storage.NewMemory()))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Run(context.Background()))
	assert.False(t, app.Session.IsAuthenticated())
	assert.True(t, app.Session.IsFirstLaunch())
}

func TestSessionObserver_PropagatesIdentityToChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/auth/login" {
			fmt.Fprint(w, `{"success":true,"data":{"user":{"id":"u1","email":"a@b.co","userType":"customer"},"tokens":{"accessToken":"at","refreshToken":"rt","expiresIn":3600}}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{}}`)
	}))
	defer srv.Close()

	store := storage.NewMemory()
	app, err := New(newTestConfig(srv.URL), WithStore(store))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	_, err = app.Session.SignIn(ctx, user.Credentials{Email: "a@b.co", Password: "password1"})
	require.NoError(t, err)

	token, err := store.Get(ctx, storage.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "at", token)
}

func TestConnectRealtime_RequiresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{}}`)
	}))
	defer srv.Close()

	app, err := New(newTestConfig(srv.URL), WithStore(storage.NewMemory()))
	require.NoError(t, err)
	defer app.Close()

	assert.Error(t, app.ConnectRealtime(context.Background()))
}
