package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/netios/guacamole-server/internal/logging"
)

var log = logging.L("config")

// Config holds everything the session core and the demo daemon need to
// start: logging, the default lag-control threshold, where to look for
// protocol plugins, and the sizing of the demo daemon's instruction
// dispatch worker pool.
type Config struct {
	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Lag control (spec §4.5): milliseconds a viewer may fall behind
	// before its socket is suspended.
	LagThresholdMS int `mapstructure:"lag_threshold_ms"`

	// Plugin loader (spec §6.2): where to look for protocol plugins and
	// how their filenames are recognized.
	PluginDir    string `mapstructure:"plugin_dir"`
	PluginPrefix string `mapstructure:"plugin_prefix"`
	PluginSuffix string `mapstructure:"plugin_suffix"`

	// Worker pool sizing: cmd/guacgo-demo sizes its instruction dispatch
	// pool (workers, backlog) from these.
	MaxConcurrentBackends int `mapstructure:"max_concurrent_backends"`
	BackendQueueSize      int `mapstructure:"backend_queue_size"`

	// Demo daemon (cmd/guacgo-demo) listen address.
	ListenAddr string `mapstructure:"listen_addr"`
}

func Default() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		LagThresholdMS: 500,

		PluginPrefix: "libguacgo-",
		PluginSuffix: ".so",

		MaxConcurrentBackends: 10,
		BackendQueueSize:      100,

		ListenAddr: "127.0.0.1:4822",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("guacgo")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GUACGO")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Validate config: fatals block startup, warnings are logged and continue.
	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("lag_threshold_ms", cfg.LagThresholdMS)
	viper.Set("plugin_dir", cfg.PluginDir)
	viper.Set("plugin_prefix", cfg.PluginPrefix)
	viper.Set("plugin_suffix", cfg.PluginSuffix)
	viper.Set("max_concurrent_backends", cfg.MaxConcurrentBackends)
	viper.Set("backend_queue_size", cfg.BackendQueueSize)
	viper.Set("listen_addr", cfg.ListenAddr)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "guacgo.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific data directory for the demo daemon.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "guacgo", "data")
	case "darwin":
		return "/Library/Application Support/guacgo/data"
	default:
		return "/var/lib/guacgo"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "guacgo")
	case "darwin":
		return "/Library/Application Support/guacgo"
	default:
		return "/etc/guacgo"
	}
}
