package configs

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadConfigFromYAML load the config from yaml file, fields missing from the
// file keep their default values
func LoadConfigFromYAML(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", filePath)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	var raw Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	merge(config, &raw)
	config.APIAddr = EnsureHTTPPrefix(config.APIAddr)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func merge(dst, src *Config) {
	if src.APIAddr != "" {
		dst.APIAddr = src.APIAddr
	}
	if src.HTTPTimeout != 0 {
		dst.HTTPTimeout = src.HTTPTimeout
	}
	if src.BinaryName != "" {
		dst.BinaryName = src.BinaryName
	}
	if src.BinaryArgs != nil {
		dst.BinaryArgs = src.BinaryArgs
	}
	if src.WorkDir != "" {
		dst.WorkDir = src.WorkDir
	}
	if src.ProbeAttempts != 0 {
		dst.ProbeAttempts = src.ProbeAttempts
	}
	if src.ProbeInterval != 0 {
		dst.ProbeInterval = src.ProbeInterval
	}
	// entries override per platform, the rest of the table stays
	for k, v := range src.DownloadURLs {
		dst.DownloadURLs[k] = v
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}
