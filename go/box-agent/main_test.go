package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	var path = filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	var path = writeConfig(t, `{
		"log": {"level": "info"},
		"http": {"addr": ":7100"},
		"uplink": {"url": "http://warehouse:7200/trackupload"}
	}`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Search.Workers)
	// Zero would disable expiry of the recognizer db cache.
	require.Equal(t, 5, cfg.Search.CacheTTLMin)
}

func TestLoadConfigRejectsMissingAddr(t *testing.T) {
	var path = writeConfig(t, `{"uplink": {"url": "http://warehouse:7200/trackupload"}}`)
	_, err := loadConfig(path)
	require.Error(t, err)
}
