package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uisync/internal/app"
	"uisync/internal/configuration"
	"uisync/internal/types"
)

func TestPing_PrintsDirectoryAndPong(t *testing.T) {
	s := app.NewServices(configuration.Default())
	srv := httptest.NewServer(s.Transport.Handler())
	defer srv.Close()

	s.Session.RegisterLeader(types.MustLeader(map[string]any{"name": "Tim"}), "mrc1", types.MustState(nil), "offline")

	var out bytes.Buffer
	err := ping(&out, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", 2*time.Second)
	require.NoError(t, err)

	require.Contains(t, out.String(), "1 site(s) led:")
	require.Contains(t, out.String(), "mrc1\tTim")
	require.Contains(t, out.String(), "my_pong from")
}

func TestPing_FailsWhenServerIsDown(t *testing.T) {
	var out bytes.Buffer
	err := ping(&out, "ws://127.0.0.1:1/ws", time.Second)
	require.Error(t, err)
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(t.TempDir(), "")
	require.NoError(t, err)
	require.Equal(t, configuration.Default(), cfg)
}

func TestLoadConfig_MissingProfileIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application.yml"), []byte("app:\n  log-level: info\n"), 0o644))

	_, err := loadConfig(dir, "staging")
	require.Error(t, err)
}
