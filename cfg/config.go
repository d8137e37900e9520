package cfg

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// LibraryConfiguration locates the native library and its header
type LibraryConfiguration struct {
	Name       string   `toml:"name"`        // Base name, platform prefix/suffix are added
	SearchDirs []string `toml:"search_dirs"` // Directories searched for the binary, in order
	Header     string   `toml:"header"`      // Interface description file name
	HeaderDirs []string `toml:"header_dirs"` // Directories searched for the header, in order
	Exports    []string `toml:"exports"`     // Glob patterns of accepted declarations
	LazyCasts  bool     `toml:"lazy_casts"`  // Materialize base views on first use instead of at construction
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the diagnostics HTTP server
type AdminConfiguration struct {
	Enabled         bool   `toml:"enabled"`
	BindAddress     string `toml:"bind_address"`
	Port            int    `toml:"port"`
	StatsIntervalMS int    `toml:"stats_interval_ms"` // How often allocation gauges are refreshed
	Secret          string `toml:"secret"`            // Required by admin endpoints when set
}

// Configuration is the main configuration structure
type Configuration struct {
	Library    LibraryConfiguration    `toml:"library"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "unitsffi.toml", "Path to configuration file")
	LibraryDirFlag = flag.String("library-dir", "", "Library search directory (prepended to config)")
	HeaderDirFlag  = flag.String("header-dir", "", "Header search directory (prepended to config)")
	AdminPortFlag  = flag.Int("admin-port", 0, "Admin server port (overrides config)")
)

// Default configuration
var Config = &Configuration{
	Library: LibraryConfiguration{
		Name:       "units",
		SearchDirs: []string{"./units_install/bin"},
		Header:     "units.h",
		HeaderDirs: []string{"./units_install/include/units"},
		Exports:    []string{"*"},
		LazyCasts:  false,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: false,
	},

	Admin: AdminConfiguration{
		Enabled:         false,
		BindAddress:     "127.0.0.1",
		Port:            9190,
		StatsIntervalMS: 5000,
		Secret:          "",
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *LibraryDirFlag != "" {
		Config.Library.SearchDirs = append([]string{*LibraryDirFlag}, Config.Library.SearchDirs...)
	}
	if *HeaderDirFlag != "" {
		Config.Library.HeaderDirs = append([]string{*HeaderDirFlag}, Config.Library.HeaderDirs...)
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	return nil
}

// Validate checks configuration for errors
func Validate() error {
	lib := Config.Library

	if lib.Name == "" {
		return fmt.Errorf("library name is required")
	}
	if strings.ContainsAny(lib.Name, "/\\") {
		return fmt.Errorf("library name cannot contain path separators: %s", lib.Name)
	}
	if len(lib.SearchDirs) == 0 {
		return fmt.Errorf("at least one library search directory is required")
	}

	if lib.Header == "" {
		return fmt.Errorf("header name is required")
	}
	if strings.ContainsAny(lib.Header, "/\\") {
		return fmt.Errorf("header name cannot contain path separators: %s", lib.Header)
	}
	if len(lib.HeaderDirs) == 0 {
		return fmt.Errorf("at least one header search directory is required")
	}

	for _, pattern := range lib.Exports {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid export pattern %q: %w", pattern, err)
		}
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	if Config.Admin.Enabled {
		if Config.Admin.Port < 1 || Config.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
		}
		if Config.Admin.StatsIntervalMS < 1 {
			return fmt.Errorf("admin stats interval must be >= 1ms")
		}
	}

	return nil
}

// IsAdminAuthEnabled returns true if admin endpoints require a secret
func IsAdminAuthEnabled() bool {
	return GetAdminSecret() != ""
}

// GetAdminSecret returns the admin secret, allowing the environment to override the file
func GetAdminSecret() string {
	if env := os.Getenv("UNITSFFI_ADMIN_SECRET"); env != "" {
		return env
	}
	return Config.Admin.Secret
}
