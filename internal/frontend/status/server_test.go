package status

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/wamlobby/internal/config"
)

func TestServer_ServesAndStops(t *testing.T) {
	logger := zaptest.NewLogger(t)
	srv := NewServer(config.StatusConfig{Enabled: true, Host: "127.0.0.1"},
		NewRouter(fixedSnapshot{}, nil, nil, logger), logger)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	srv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("status server did not stop")
	}
}
