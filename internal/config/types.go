// Package config loads akumulid's INI configuration file using Viper, the
// same loader the teacher used for its YAML config — generalized here to
// INI sections per spec.md §6.2: [HTTP], [TCP], [UDP], [OpenTSDB], [WAL],
// and a root section holding the database path and volume geometry.
//
// Environment variables use the AKUMULID_ prefix and underscore-separated
// keys, mirroring the teacher's HYDRADNS_ convention:
//   - AKUMULID_HTTP_PORT -> http.port
//   - AKUMULID_WAL_NVOLUMES -> wal.nvolumes
package config

import (
	"os"
	"strings"
)

// EndpointConfig is one server section: [HTTP], [TCP], [UDP], or
// [OpenTSDB]. PoolSize of 0 means auto: the UDP server then runs one worker
// per CPU. The TCP servers serve each connection on its own goroutine and
// do not use PoolSize.
type EndpointConfig struct {
	Port     int
	BindAddr string
	PoolSize int
}

// WALConfig is the [WAL] section. A zero NVolumes means WAL is disabled;
// otherwise it must fall in [2,1000] and VolumeSize in [1 MiB, 1 GiB] or
// normalizeConfig disables WAL with a logged reason (spec.md §6.2).
type WALConfig struct {
	Path       string
	NVolumes   int
	VolumeSize int64
	Disabled   bool
	DisabledReason string
}

// LoggingConfig mirrors the teacher's internal/logging.Config fields,
// loaded from an optional [logging] section.
type LoggingConfig struct {
	Level            string
	Structured       bool
	StructuredFormat string
	IncludePID       bool
	ExtraFields      map[string]string
}

// Config is the root configuration structure: the database root section
// (path, nvolumes, volume_size) plus one EndpointConfig per wire
// protocol, [WAL], and ambient logging settings.
type Config struct {
	Path       string
	NVolumes   int
	VolumeSize int64

	HTTP     EndpointConfig
	TCP      EndpointConfig
	UDP      EndpointConfig
	OpenTSDB EndpointConfig
	WAL      WALConfig
	Logging  LoggingConfig
	APIKey   string
}

// ResolveConfigPath determines the config file path from flag or
// environment, preferring an explicit flag value.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("AKUMULID_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from an INI file with environment variable
// overrides and hardcoded defaults, the same three-tier priority the
// teacher's config.Load documents.
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
