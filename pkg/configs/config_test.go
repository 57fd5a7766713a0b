package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ngrok_client.yaml")
	content := `
api_addr: "127.0.0.1:4041"
probe_attempts: 3
probe_interval: 250ms
work_dir: /tmp/agent
download_urls:
  linux/amd64: "http://mirror.local/ngrok.tgz"
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFromYAML(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4041", cfg.APIAddr)
	assert.Equal(t, 3, cfg.ProbeAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ProbeInterval)
	assert.Equal(t, "/tmp/agent", cfg.WorkDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://mirror.local/ngrok.tgz", cfg.DownloadURLs["linux/amd64"])
	// untouched entries survive the merge
	assert.Equal(t, DefaultDownloadURLs["darwin/arm64"], cfg.DownloadURLs["darwin/arm64"])
	assert.Equal(t, DefaultBinaryName, cfg.BinaryName)
	assert.Equal(t, []string{"start", "--none"}, cfg.BinaryArgs)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
}

func TestLoadConfigFromYAML_MissingFile(t *testing.T) {
	_, err := LoadConfigFromYAML(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"negative attempts", "probe_attempts: -1"},
		{"negative interval", "probe_interval: -1s"},
		{"not yaml", "api_addr: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfigIsIndependent(t *testing.T) {
	a := DefaultConfig()
	a.DownloadURLs["linux/amd64"] = "changed"
	b := DefaultConfig()
	assert.Equal(t, DefaultDownloadURLs["linux/amd64"], b.DownloadURLs["linux/amd64"])
	assert.NoError(t, b.Validate())
}

func TestEnsureHTTPPrefix(t *testing.T) {
	assert.Equal(t, "http://localhost:4040", EnsureHTTPPrefix("localhost:4040"))
	assert.Equal(t, "https://agent.local", EnsureHTTPPrefix("https://agent.local"))
	assert.Equal(t, "http://127.0.0.1:4040", EnsureHTTPPrefix("http://127.0.0.1:4040"))
}
