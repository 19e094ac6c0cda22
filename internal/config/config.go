package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Memory    MemoryConfig              `mapstructure:"memory"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Tools     ToolsConfig               `mapstructure:"tools"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MemoryConfig controls the memory store
type MemoryConfig struct {
	// Enabled is the global switch for the memory provider's operations
	Enabled bool `mapstructure:"enabled"`
	// Path is the default storage location: a directory, a database
	// file or a postgres:// URL
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderConfig is the host-side configuration of one provider
type ProviderConfig struct {
	Args      []string          `mapstructure:"args"`
	Overrides map[string]string `mapstructure:"overrides"`
	Autostart bool              `mapstructure:"autostart"`
}

// ToolsConfig holds operation execution settings
type ToolsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Loader reads the configuration from a file and the environment. Every
// Load starts from a fresh viper instance, so a Loader can be used to
// reload a changed file.
type Loader struct {
	path string
}

// NewLoader creates a loader. An empty path searches ./configs and the
// working directory for config.yaml.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads and validates the configuration
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Memory defaults
	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.path", "./data")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tools.timeout", 60*time.Second)
}

// normalize restores the case of override keys, which viper lowercases
func (c *Config) normalize() {
	for name, provider := range c.Providers {
		overrides := make(map[string]string, len(provider.Overrides))
		for key, value := range provider.Overrides {
			overrides[strings.ToUpper(key)] = value
		}
		provider.Overrides = overrides
		c.Providers[name] = provider
	}
}

// GetAddress returns the server address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if strings.TrimSpace(c.Memory.Path) == "" {
		return fmt.Errorf("memory path cannot be empty")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("unsupported log format: %s", c.Logging.Format)
	}

	if c.Tools.Timeout < 0 {
		return fmt.Errorf("tool timeout cannot be negative: %s", c.Tools.Timeout)
	}

	return nil
}

// ProviderOverrides returns a copy of the configured overrides for name
func (c *Config) ProviderOverrides(name string) map[string]string {
	provider, ok := c.Providers[strings.ToLower(name)]
	if !ok {
		return nil
	}
	overrides := make(map[string]string, len(provider.Overrides))
	for key, value := range provider.Overrides {
		overrides[key] = value
	}
	return overrides
}
