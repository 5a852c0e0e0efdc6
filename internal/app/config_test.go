package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privcal/internal/app"
	"privcal/internal/cache"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, app.ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	cfg, err := app.LoadConfig("", home)
	require.NoError(t, err)
	assert.Equal(t, app.DefaultConfig(home), cfg)
	assert.Equal(t, 5, cfg.MaxPublishRelays)
	assert.Equal(t, 5, cfg.DecryptConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.RelayListTTL)
	assert.Equal(t, 10*time.Minute, cfg.AuthValidity)
	assert.Equal(t, cache.DefaultPolicy(), cfg.Cache)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, `
default_relays: [wss://one.example, wss://two.example]
lookup_relays: [wss://index.example]
max_publish_relays: 3
cache:
  max_entries: 100
timeouts:
  lookup: 2s
metrics_addr: 127.0.0.1:9100
`)
	cfg, err := app.LoadConfig("", home)
	require.NoError(t, err)
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, []string{"wss://one.example", "wss://two.example"}, cfg.DefaultRelays)
	assert.Equal(t, []string{"wss://index.example"}, cfg.LookupRelays)
	assert.Equal(t, 3, cfg.MaxPublishRelays)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Lookup)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Publish)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "home: "+filepath.Join(dir, "state")+"\n")
	cfg, err := app.LoadConfig(path, "/ignored")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.Home)

	_, err = app.LoadConfig(filepath.Join(dir, "missing.yaml"), dir)
	require.Error(t, err)
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "relays: [wss://x]\n",
		"bad relay":        "default_relays: [https://x.example]\n",
		"zero concurrency": "decrypt_concurrency: 0\n",
		"negative ttl":     "relay_list_ttl: -1s\n",
		"bad cache":        "cache: {max_entries: -1}\n",
		"zero timeout":     "timeouts: {publish: 0s}\n",
		"bad lookup":       "lookup_relays: [nope]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			home := t.TempDir()
			writeConfig(t, home, body)
			_, err := app.LoadConfig("", home)
			require.Error(t, err)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := app.DefaultConfig("")
	cfg.DefaultRelays = nil
	cfg.MaxPublishRelays = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, app.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "home is required")
	assert.Contains(t, err.Error(), "default_relays")
	assert.Contains(t, err.Error(), "max_publish_relays")
}
