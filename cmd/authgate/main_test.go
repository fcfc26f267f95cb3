package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/cognito-auth/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    20 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

func TestNewServer(t *testing.T) {
	handler := http.NotFoundHandler()
	srv := newServer(testConfig(), handler)

	assert.Equal(t, "127.0.0.1:8080", srv.Addr)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 20*time.Second, srv.WriteTimeout)
	assert.NotZero(t, srv.ReadHeaderTimeout)
}

func TestServe(t *testing.T) {
	t.Run("shuts down when the context is cancelled", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := newServer(testConfig(), mux)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- serve(ctx, srv, ln, time.Second, zaptest.NewLogger(t))
		}()

		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("reports serve errors", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		require.NoError(t, ln.Close())

		err = serve(context.Background(), newServer(testConfig(), http.NotFoundHandler()), ln, time.Second, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Cognito = config.CognitoConfig{
		Region:     "us-east-1",
		UserPoolID: "us-east-1_abc",
		TokenUse:   "access",
	}

	// zero JWKS timeout is rejected while wiring dependencies
	err := run(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize auth")
}

func TestRun_DevelopmentWarning(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "development"
	cfg.Cognito = config.CognitoConfig{
		Region:     "us-east-1",
		UserPoolID: "us-east-1_abc",
		TokenUse:   "access",
	}
	cfg.CORS.AllowedOrigins = []string{"http://localhost:*"}

	core, logs := observer.New(zapcore.WarnLevel)
	err := run(context.Background(), cfg, zap.New(core))
	require.Error(t, err)

	entries := logs.FilterMessage("running in development mode").All()
	require.Len(t, entries, 1)
	assert.Equal(t,
		"https://cognito-idp.us-east-1.amazonaws.com/us-east-1_abc/.well-known/jwks.json",
		entries[0].ContextMap()["jwks_url"])
}
