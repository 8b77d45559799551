package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServer_ExposesMetricsAndHealth(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	EventsTotal.WithLabelValues("my_ping", "ok").Inc()

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", string(body))

	resp, err = http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "uisync_dispatch_events_total"))
}

func TestSplitMethodName(t *testing.T) {
	svc, method := splitMethodName("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", svc)
	require.Equal(t, "Check", method)

	svc, method = splitMethodName("")
	require.Equal(t, "unknown", svc)
	require.Equal(t, "unknown", method)

	svc, method = splitMethodName("NoSlash")
	require.Equal(t, "unknown", svc)
	require.Equal(t, "NoSlash", method)
}
