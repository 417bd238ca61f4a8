package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/notify"
)

const listingPage = `<html><body>
<div class="p-product">
  <a href="/exist_products/101"><h3 class="title">Character sheet A</h3></a>
  <p class="text-danger">¥2,500</p>
</div>
<div class="p-product">
  <a href="/exist_products/102"><h3 class="title">Character sheet B</h3></a>
  <p class="text-danger">¥50,000</p>
</div>
</body></html>`

// marketServer serves one listing page and item pages linking to a seller profile
func marketServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, listingPage)
	})
	mux.HandleFunc("/exist_products/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html><body><a href="/users/alice">alice</a></body></html>`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeConfig(t *testing.T, marketURL, backend string) (cfgPath, stateDir string) {
	t.Helper()
	dir := t.TempDir()
	stateDir = filepath.Join(dir, "data")
	cfgPath = filepath.Join(dir, "config.yml")
	content := fmt.Sprintf(`
timezone: UTC
sources:
  - category: listing
    url: %s/list
fetch:
  retries: 1
  timeout: 2s
state:
  backend: %s
  dir: %s
sellers:
  priority_file: %s
  exclude_file: %s
quiet_hours:
  disabled: true
notify:
  retries: 1
`, marketURL, backend, stateDir, filepath.Join(dir, "special.txt"), filepath.Join(dir, "exclude.txt"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath, stateDir
}

func TestRun_MissingConfig(t *testing.T) {
	err := run(context.Background(), Opts{Config: "non-existent-config.yml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.yml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: content: ["), 0o600))

	err := run(context.Background(), Opts{Config: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_WebhookRequired(t *testing.T) {
	cfgPath, _ := writeConfig(t, "http://127.0.0.1:1", "json")
	err := run(context.Background(), Opts{Config: cfgPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook url is required")
}

func TestRun_ForceFlagsConflict(t *testing.T) {
	err := run(context.Background(), Opts{ForceNight: true, ForceDay: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestRun_SendsNotification(t *testing.T) {
	market := marketServer(t)

	var received atomic.Value
	var posts atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		var msg notify.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil {
			received.Store(msg)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfgPath, stateDir := writeConfig(t, market.URL, "json")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, Opts{Config: cfgPath, Webhook: hook.URL, NoColor: true})
	require.NoError(t, err)

	require.Equal(t, int32(1), posts.Load())
	msg, ok := received.Load().(notify.Message)
	require.True(t, ok)
	require.Len(t, msg.Cards, 1, "expensive item filtered")
	assert.Equal(t, "Character sheet A", msg.Cards[0].Title)
	assert.FileExists(t, filepath.Join(stateDir, "seen.json"))
	assert.FileExists(t, filepath.Join(stateDir, "sellers.json"))

	// second run finds nothing new
	require.NoError(t, run(ctx, Opts{Config: cfgPath, Webhook: hook.URL, NoColor: true}))
	assert.Equal(t, int32(1), posts.Load())
}

func TestRun_DryRunWithoutWebhook(t *testing.T) {
	market := marketServer(t)
	cfgPath, stateDir := writeConfig(t, market.URL, "json")

	err := run(context.Background(), Opts{Config: cfgPath, DryRun: true, NoColor: true})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(stateDir, "seen.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_SQLiteBackend(t *testing.T) {
	market := marketServer(t)
	var posts atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	cfgPath, _ := writeConfig(t, market.URL, "sqlite")
	stateDir := filepath.Join(t.TempDir(), "db-state")

	opts := Opts{Config: cfgPath, Webhook: hook.URL, StateDir: stateDir, NoColor: true}
	require.NoError(t, run(context.Background(), opts))
	require.NoError(t, run(context.Background(), opts))
	assert.Equal(t, int32(1), posts.Load(), "state kept in sqlite between runs")
	assert.FileExists(t, filepath.Join(stateDir, "lotwatch.db"))
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	applyOverrides(cfg, Opts{Webhook: "https://hook.example.com/x", Retry: 5, StateDir: "/tmp/lw"})
	assert.Equal(t, "https://hook.example.com/x", cfg.Notify.WebhookURL)
	assert.Equal(t, 5, cfg.Fetch.Retries)
	assert.Equal(t, "/tmp/lw", cfg.State.Dir)
	assert.Equal(t, config.DefaultDSN("/tmp/lw"), cfg.State.DSN)

	cfg.State.DSN = "file:custom.db"
	applyOverrides(cfg, Opts{StateDir: "/tmp/other"})
	assert.Equal(t, "file:custom.db", cfg.State.DSN, "explicit dsn kept")
}

func TestSetupLog(t *testing.T) {
	setupLog(true, false, false, "secret1", "")
	setupLog(false, true, true)
	setupLog(false, false, false)
}
