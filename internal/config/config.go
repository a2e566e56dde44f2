package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultVolumeSize int64 = 4 << 30 // 4 GiB
	defaultNVolumes         = 4

	walMinVolumeSize int64 = 1 << 20  // 1 MiB
	walMaxVolumeSize int64 = 1 << 30  // 1 GiB
	walMinVolumes          = 2
	walMaxVolumes          = 1000
)

func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("ini")
	setDefaults(v)

	v.SetEnvPrefix("AKUMULID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root.path", "/var/lib/akumuli")
	v.SetDefault("root.nvolumes", defaultNVolumes)
	v.SetDefault("root.volume_size", "4GB")

	v.SetDefault("http.port", 8181)
	v.SetDefault("http.bind_addr", "")
	v.SetDefault("http.pool_size", 0)

	v.SetDefault("tcp.port", 8282)
	v.SetDefault("tcp.bind_addr", "")
	v.SetDefault("tcp.pool_size", 0)

	v.SetDefault("udp.port", 8383)
	v.SetDefault("udp.bind_addr", "")
	v.SetDefault("udp.pool_size", 0)

	v.SetDefault("opentsdb.port", 4242)
	v.SetDefault("opentsdb.bind_addr", "")
	v.SetDefault("opentsdb.pool_size", 0)

	v.SetDefault("wal.path", "")
	v.SetDefault("wal.nvolumes", 0)
	v.SetDefault("wal.volume_size", "1MB")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)

	v.SetDefault("api.api_key", "")
}

// loadFromSource loads configuration from an INI file and environment,
// then normalizes and validates it.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.Path = v.GetString("root.path")
	cfg.NVolumes = v.GetInt("root.nvolumes")
	cfg.VolumeSize, err = parseSize(v.GetString("root.volume_size"))
	if err != nil {
		return nil, fmt.Errorf("config: root.volume_size: %w", err)
	}

	cfg.HTTP = loadEndpoint(v, "http")
	cfg.TCP = loadEndpoint(v, "tcp")
	cfg.UDP = loadEndpoint(v, "udp")
	cfg.OpenTSDB = loadEndpoint(v, "opentsdb")

	cfg.WAL.Path = v.GetString("wal.path")
	cfg.WAL.NVolumes = v.GetInt("wal.nvolumes")
	cfg.WAL.VolumeSize, err = parseSize(v.GetString("wal.volume_size"))
	if err != nil {
		return nil, fmt.Errorf("config: wal.volume_size: %w", err)
	}

	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = map[string]string{}

	cfg.APIKey = v.GetString("api.api_key")

	normalizeConfig(cfg)
	return cfg, nil
}

func loadEndpoint(v *viper.Viper, section string) EndpointConfig {
	return EndpointConfig{
		Port:     v.GetInt(section + ".port"),
		BindAddr: v.GetString(section + ".bind_addr"),
		PoolSize: v.GetInt(section + ".pool_size"),
	}
}

// normalizeConfig applies spec.md §6.2's WAL validation: nvolumes must be
// 0 (disabled) or in [2,1000], volume_size must be in [1 MiB, 1 GiB], and
// wal.path must exist. A violation disables WAL and records why, rather
// than aborting startup.
func normalizeConfig(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}

	if cfg.WAL.NVolumes == 0 {
		return
	}
	if cfg.WAL.NVolumes < walMinVolumes || cfg.WAL.NVolumes > walMaxVolumes {
		cfg.WAL.Disabled = true
		cfg.WAL.DisabledReason = fmt.Sprintf("wal.nvolumes %d out of range [%d,%d]", cfg.WAL.NVolumes, walMinVolumes, walMaxVolumes)
		return
	}
	if cfg.WAL.VolumeSize < walMinVolumeSize || cfg.WAL.VolumeSize > walMaxVolumeSize {
		cfg.WAL.Disabled = true
		cfg.WAL.DisabledReason = fmt.Sprintf("wal.volume_size %d out of range [%d,%d]", cfg.WAL.VolumeSize, walMinVolumeSize, walMaxVolumeSize)
		return
	}
	if cfg.WAL.Path == "" {
		cfg.WAL.Disabled = true
		cfg.WAL.DisabledReason = "wal.path is empty"
		return
	}
	if _, err := os.Stat(cfg.WAL.Path); err != nil {
		cfg.WAL.Disabled = true
		cfg.WAL.DisabledReason = fmt.Sprintf("wal.path %q does not exist", cfg.WAL.Path)
	}
}

// parseSize accepts an integer byte count or an integer with a KB/MB/GB
// suffix (case-insensitive), per spec.md §6.2's size-field grammar.
func parseSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	upper := strings.ToUpper(raw)
	multiplier := int64(1)
	numeric := upper
	switch {
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1 << 30
		numeric = strings.TrimSuffix(upper, "GB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1 << 20
		numeric = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1 << 10
		numeric = strings.TrimSuffix(upper, "KB")
	}

	numeric = strings.TrimSpace(numeric)
	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}

// DefaultINI renders the default configuration as INI text, for the CLI's
// --init command. When expandable is true (the --init-expandable variant)
// the root section sets nvolumes=0 and a leading comment line is added.
func DefaultINI(expandable bool) string {
	var b bytes.Buffer

	section := func(name string, lines ...string) {
		fmt.Fprintf(&b, "[%s]\n", name)
		for _, l := range lines {
			fmt.Fprintln(&b, l)
		}
		b.WriteByte('\n')
	}

	comment := func(text string) string {
		if !expandable {
			return ""
		}
		return "; " + text
	}

	nvolumes := "nvolumes=4"
	if expandable {
		nvolumes = "nvolumes=0"
	}

	fmt.Fprintln(&b, strings.TrimSpace(comment("akumulid configuration")))
	section("root",
		"path=/var/lib/akumuli",
		nvolumes,
		"volume_size=4GB",
	)
	section("HTTP", "port=8181")
	section("TCP", "port=8282", "pool_size=0")
	section("UDP", "port=8383", "pool_size=0")
	section("OpenTSDB", "port=4242", "pool_size=0")
	section("WAL", "nvolumes=0", "volume_size=1MB")
	section("logging", "level=INFO", "structured=false")

	return b.String()
}

// StripWALSection removes the [WAL] section from rendered INI text, for
// the --disable-wal CLI flag (spec.md §6: "omit WAL section in generated
// config").
func StripWALSection(ini string) string {
	var out bytes.Buffer
	scanner := bufio.NewScanner(strings.NewReader(ini))
	inWAL := false
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inWAL = strings.EqualFold(trimmed, "[WAL]")
			if inWAL {
				continue
			}
		}
		if inWAL {
			continue
		}
		fmt.Fprintln(&out, line)
	}
	return out.String()
}
