package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/chatrelay/internal/config"
)

func testConfig(namespace string) config.Config {
	return config.Config{
		BindAddr:         ":0",
		ShutdownTimeout:  time.Second,
		MetricsNamespace: namespace,
		AllowedOrigins:   []string{"*"},
		MaxHistory:       4,
		MaxFrameBytes:    1 << 20,
		Backend:          config.BackendMock,
	}
}

func TestBuildWiresMockBackend(t *testing.T) {
	res, err := Build(context.Background(), testConfig("test_app_build"), zerolog.Nop())
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Equal(t, "mock", res.Backend.Name())

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"sessionId":"a","message":"hello"}`))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(string(body), "data: \"[DONE]\"\n\n"))
	}

	history, err := res.Sessions.History("a")
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(res.Metrics.Sessions))
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig("test_app_bad")
	cfg.Backend = "openai"
	_, err := Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}
