package configs

import (
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultAPIAddr       = "http://127.0.0.1:4040"
	DefaultBinaryName    = "ngrok"
	DefaultProbeAttempts = 7
	// A freshly spawned agent needs well over a few milliseconds to bind its
	// API listener.
	DefaultProbeInterval = time.Second
	DefaultHTTPTimeout   = 10 * time.Second
)

// DefaultDownloadURLs keys are "<GOOS>/<GOARCH>"
var DefaultDownloadURLs = map[string]string{
	"darwin/amd64":  "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-darwin-amd64.zip",
	"darwin/arm64":  "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-darwin-arm64.zip",
	"linux/386":     "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-linux-386.tgz",
	"linux/amd64":   "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-linux-amd64.tgz",
	"linux/arm":     "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-linux-arm.tgz",
	"linux/arm64":   "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-linux-arm64.tgz",
	"freebsd/386":   "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-freebsd-386.tgz",
	"freebsd/amd64": "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-freebsd-amd64.tgz",
	"windows/386":   "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-windows-386.zip",
	"windows/amd64": "https://bin.equinox.io/c/bNyj1mQVY4c/ngrok-v3-stable-windows-amd64.zip",
}

// Config holds everything the client, bootstrapper and provisioner need.
// Zero values are replaced with defaults by LoadConfigFromYAML.
type Config struct {
	APIAddr       string            `yaml:"api_addr"`
	HTTPTimeout   time.Duration     `yaml:"http_timeout"`
	BinaryName    string            `yaml:"binary_name"`
	BinaryArgs    []string          `yaml:"binary_args"`
	WorkDir       string            `yaml:"work_dir"`
	ProbeAttempts int               `yaml:"probe_attempts"`
	ProbeInterval time.Duration     `yaml:"probe_interval"`
	DownloadURLs  map[string]string `yaml:"download_urls"`
	LogLevel      string            `yaml:"log_level"`
}

func DefaultConfig() *Config {
	urls := make(map[string]string, len(DefaultDownloadURLs))
	for k, v := range DefaultDownloadURLs {
		urls[k] = v
	}
	return &Config{
		APIAddr:       DefaultAPIAddr,
		HTTPTimeout:   DefaultHTTPTimeout,
		BinaryName:    DefaultBinaryName,
		BinaryArgs:    []string{"start", "--none"},
		WorkDir:       ".",
		ProbeAttempts: DefaultProbeAttempts,
		ProbeInterval: DefaultProbeInterval,
		DownloadURLs:  urls,
		LogLevel:      "info",
	}
}

// ExecutableName is the binary file name on the running platform
func (c *Config) ExecutableName() string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(c.BinaryName, ".exe") {
		return c.BinaryName + ".exe"
	}
	return c.BinaryName
}

func (c *Config) Validate() error {
	if c.ProbeAttempts <= 0 {
		return errors.Errorf("probe_attempts must be positive, got %d", c.ProbeAttempts)
	}
	if c.ProbeInterval < 0 {
		return errors.Errorf("probe_interval must not be negative, got %s", c.ProbeInterval)
	}
	if c.BinaryName == "" {
		return errors.New("binary_name must be set")
	}
	if c.APIAddr == "" {
		return errors.New("api_addr must be set")
	}
	return nil
}

// EnsureHTTPPrefix ensures the address has an HTTP protocol prefix
// Converts "127.0.0.1:4040" → "http://127.0.0.1:4040"
// Leaves "http://..." or "https://..." unchanged
func EnsureHTTPPrefix(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}
