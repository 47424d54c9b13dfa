package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	ServerAddr       string `mapstructure:"server_addr"`
	BindAddr         string `mapstructure:"bind_addr"`
	UserID           string `mapstructure:"user_id"`
	MpvBinary        string `mapstructure:"mpv_binary"`
	SocketDir        string `mapstructure:"socket_dir"`
	PollIntervalMs   int    `mapstructure:"poll_interval_ms"`
	SyncTolerance    int    `mapstructure:"sync_tolerance"`
	MinimalDisplay   bool   `mapstructure:"minimal_display"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	LogFile          string `mapstructure:"log_file"`
	LogMaxSizeMB     int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups    int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		ServerAddr:     "127.0.0.1:8080",
		BindAddr:       "127.0.0.1:8080",
		SocketDir:      os.TempDir(),
		PollIntervalMs: 1000,
		SyncTolerance:  1,
		LogLevel:       "info",
		LogFormat:      "text",
		LogMaxSizeMB:   10,
		LogMaxBackups:  2,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("syncread")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SYNCREAD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SocketPath returns the per-user mpv IPC endpoint path. On Windows the
// file name doubles as the named pipe name.
func (c *Config) SocketPath(userID string) string {
	return filepath.Join(c.SocketDir, "syncread_"+userID+".socket")
}

// DefaultLogFile returns the log destination used when log_file is unset.
func (c *Config) DefaultLogFile() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "syncread", "syncread.log")
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "syncread")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "syncread")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "syncread")
		}
		return filepath.Join(os.Getenv("HOME"), ".config", "syncread")
	}
}
