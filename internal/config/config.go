package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Mirrors MirrorsConfig `mapstructure:"mirrors"`
	AI      AIConfig      `mapstructure:"ai"`
	Posters PostersConfig `mapstructure:"posters"`
	Player  PlayerConfig  `mapstructure:"player"`
	UI      UIConfig      `mapstructure:"ui"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CatalogConfig holds the catalog database source
type CatalogConfig struct {
	DBURL      string `mapstructure:"db_url"`      // zip or raw sqlite download
	VersionURL string `mapstructure:"version_url"` // plain-text version string
	DataDir    string `mapstructure:"data_dir"`    // catalog, state db, poster files
}

// MirrorsConfig holds the known file mirrors
type MirrorsConfig struct {
	List         []string      `mapstructure:"list"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// AIConfig holds the recommendation model settings
type AIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxHistory int           `mapstructure:"max_history"`
}

// PostersConfig holds the poster search API settings
type PostersConfig struct {
	APIKey        string   `mapstructure:"api_key"`
	Endpoint      string   `mapstructure:"endpoint"`
	TrustedHosts  []string `mapstructure:"trusted_hosts"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
}

// PlayerConfig holds media player configuration
type PlayerConfig struct {
	Command   string   `mapstructure:"command"`
	Args      []string `mapstructure:"args"`
	StartFlag string   `mapstructure:"start_flag"` // e.g., "--start=" or "--start-time="
}

// UIConfig holds UI configuration
type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultMirrors is the mirror list shipped with the client
var DefaultMirrors = []string{
	"45.250.20.254",
	"172.16.50.7",
	"10.16.100.213",
	"10.100.100.12",
	"10.16.100.202",
	"10.16.100.212",
	"10.16.100.206",
	"103.153.175.254/NAS1",
	"server1.dhakamovie.com/",
	"data.kenecolor.com/data/",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			DBURL:      "https://github.com/alamin-sarkar/test/raw/refs/heads/main/test/movie_database.zip",
			VersionURL: "https://raw.githubusercontent.com/alamin-sarkar/test/refs/heads/main/test/db_version.txt",
			DataDir:    defaultDataPath(),
		},
		Mirrors: MirrorsConfig{
			List:         append([]string(nil), DefaultMirrors...),
			ProbeTimeout: 2 * time.Second,
		},
		AI: AIConfig{
			Model:      "gemini-2.5-flash",
			Endpoint:   "https://generativelanguage.googleapis.com/v1beta",
			Timeout:    30 * time.Second,
			MaxHistory: 20,
		},
		Posters: PostersConfig{
			Endpoint: "https://www.omdbapi.com/",
			TrustedHosts: []string{
				"m.media-amazon.com",
				"ia.media-imdb.com",
				"image.tmdb.org",
				"img.omdbapi.com",
			},
			RatePerSecond: 4,
		},
		Player: PlayerConfig{
			Command: "",
			Args:    []string{},
		},
		UI: UIConfig{
			Theme: "default",
		},
		Logging: LoggingConfig{
			File:       defaultLogPath(),
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "reel")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "reel")
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	return filepath.Join(defaultDataPath(), "reel.log")
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reel")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "reel")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return load(viper.GetViper(), defaultConfigPath())
}

func load(v *viper.Viper, configDir string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Environment variable overrides
	v.SetEnvPrefix("REEL")
	v.AutomaticEnv()
	_ = v.BindEnv("ai.api_key", "REEL_AI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("posters.api_key", "REEL_POSTERS_API_KEY", "OMDB_API_KEY")

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if len(cfg.Mirrors.List) == 0 {
		cfg.Mirrors.List = append([]string(nil), DefaultMirrors...)
	}
	if cfg.Mirrors.ProbeTimeout <= 0 {
		cfg.Mirrors.ProbeTimeout = 2 * time.Second
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	return save(viper.GetViper(), cfg, defaultConfigPath())
}

func save(v *viper.Viper, cfg *Config, configPath string) error {
	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("catalog.db_url", cfg.Catalog.DBURL)
	v.Set("catalog.version_url", cfg.Catalog.VersionURL)
	v.Set("catalog.data_dir", cfg.Catalog.DataDir)

	v.Set("mirrors.list", cfg.Mirrors.List)
	v.Set("mirrors.probe_timeout", cfg.Mirrors.ProbeTimeout.String())

	v.Set("ai.api_key", cfg.AI.APIKey)
	v.Set("ai.model", cfg.AI.Model)
	v.Set("ai.endpoint", cfg.AI.Endpoint)
	v.Set("ai.timeout", cfg.AI.Timeout.String())
	v.Set("ai.max_history", cfg.AI.MaxHistory)

	v.Set("posters.api_key", cfg.Posters.APIKey)
	v.Set("posters.endpoint", cfg.Posters.Endpoint)
	v.Set("posters.trusted_hosts", cfg.Posters.TrustedHosts)
	v.Set("posters.rate_per_second", cfg.Posters.RatePerSecond)

	v.Set("player.command", cfg.Player.Command)
	v.Set("player.args", cfg.Player.Args)
	v.Set("player.start_flag", cfg.Player.StartFlag)

	v.Set("ui.theme", cfg.UI.Theme)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.Set("logging.max_backups", cfg.Logging.MaxBackups)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CatalogPath returns the catalog database location inside the data dir
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Catalog.DataDir, "movie_database.db")
}

// StatePath returns the persisted state database location
func (c *Config) StatePath() string {
	return filepath.Join(c.Catalog.DataDir, "state.db")
}

// PosterDir returns the directory for locally cached poster images
func (c *Config) PosterDir() string {
	return filepath.Join(c.Catalog.DataDir, "poster_cache")
}

// HasAI returns true if the recommendation model is configured
func (c *Config) HasAI() bool {
	return c.AI.APIKey != ""
}

// ClearCache removes cached state and poster images, keeping the catalog
func ClearCache(cfg *Config) error {
	if err := os.Remove(cfg.StatePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	if err := os.RemoveAll(cfg.PosterDir()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
