package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "valuesnap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
namespace: deps
default_ttl: 90s
backend: redis
redis:
  addr: cache.internal:6380
  db: 2
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "deps", cfg.Namespace)
	assert.Equal(t, 90*time.Second, cfg.DefaultTTL)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "valuesnap::", cfg.Redis.ChannelPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stderr"}, cfg.Log.Outputs)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "namespace: from-file\n")
	t.Setenv("VALUESNAP_NAMESPACE", "from-env")
	t.Setenv("VALUESNAP_REDIS_ADDR", "env:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Namespace)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("VALUESNAP_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend":   "backend: etcd\n",
		"log level": "log:\n  level: loud\n",
		"ttl":       "default_ttl: -1s\n",
		"redis":     "backend: redis\nredis:\n  addr: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
