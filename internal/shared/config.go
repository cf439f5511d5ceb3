package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Paths    PathsConfig    `toml:"paths"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Remote   RemoteConfig   `toml:"remote"`
	Server   ServerConfig   `toml:"server"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path          string `toml:"path"`
	MaxOpenConns  int    `toml:"max_open_conns"`
	MaxIdleConns  int    `toml:"max_idle_conns"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// PathsConfig contains the directories the pipeline reads from and writes to.
type PathsConfig struct {
	Downloads string `toml:"downloads"` // Staged archives, removed after extraction
	Extract   string `toml:"extract"`   // Extraction staging root, one sub-directory per archive
	Library   string `toml:"library"`   // Final year/month/day tree
}

// PipelineConfig contains scheduler budgets.
//
// Each stage limit bounds the number of in-flight units of work for that stage.
type PipelineConfig struct {
	TickMS         int `toml:"tick_ms"`
	Download       int `toml:"download"`
	Examine        int `toml:"examine"`
	MediaProcess   int `toml:"media_process"`
	SidecarProcess int `toml:"sidecar_process"`
	MaxDownloaded  int `toml:"max_downloaded"` // Cap on downloaded-but-unextracted archives, 0 disables
}

// RemoteConfig contains Google Drive credentials and the Takeout folder.
type RemoteConfig struct {
	FolderID     string  `toml:"folder_id"`
	ClientID     string  `toml:"client_id"`
	ClientSecret string  `toml:"client_secret"`
	RedirectURI  string  `toml:"redirect_uri"`
	TokenPath    string  `toml:"token_path"`
	RateLimit    float64 `toml:"rate_limit"` // Requests per second
}

// ServerConfig contains the metrics and health endpoint settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// Tick returns the scheduler polling interval.
func (p PipelineConfig) Tick() time.Duration {
	if p.TickMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(p.TickMS) * time.Millisecond
}

// Addr returns the listen address for the metrics server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks that stage budgets and paths are usable.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is empty", ErrInvalidConfig)
	}

	for name, n := range map[string]int{
		"pipeline.download":        c.Pipeline.Download,
		"pipeline.examine":         c.Pipeline.Examine,
		"pipeline.media_process":   c.Pipeline.MediaProcess,
		"pipeline.sidecar_process": c.Pipeline.SidecarProcess,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidConfig, name, n)
		}
	}

	if c.Pipeline.MaxDownloaded < 0 {
		return fmt.Errorf("%w: pipeline.max_downloaded must not be negative", ErrInvalidConfig)
	}

	if c.Paths.Downloads == "" || c.Paths.Extract == "" || c.Paths.Library == "" {
		return fmt.Errorf("%w: paths.downloads, paths.extract and paths.library are required", ErrInvalidConfig)
	}

	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
