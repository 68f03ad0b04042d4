package web

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panicsave/panicsave/internal/config"
)

func TestServerStartAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Web.Host = "127.0.0.1"
	require.NoError(t, cfg.SetWebPort(freePort(t)))

	srv := NewServer(cfg, NewHandler(&stubStatus{}, nil, nil, nil), nil)
	assert.Equal(t, cfg.WebAddress(), srv.GetAddress())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	require.Eventually(t, func() bool {
		code, err := httpGet("http://" + srv.GetAddress() + "/health")
		return err == nil && code == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func httpGet(url string) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
