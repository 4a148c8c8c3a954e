package config

import (
	"fmt"
	"os"
	"strings"

	"finboard/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from a YAML file. Provider tokens
// left empty in YAML are resolved from the environment
// (FINBOARD_<NAME>_TOKEN), with a .env file honored if present.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Resolve provider tokens from environment
	// Ignore error: a missing .env file is normal outside development
	_ = godotenv.Load()
	config.resolveTokens()

	// 4. Apply defaults, then validate
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) resolveTokens() {
	for i, p := range c.Providers {
		if p.Token != "" {
			continue
		}
		envKey := fmt.Sprintf("FINBOARD_%s_TOKEN", strings.ToUpper(p.Name))
		if v := os.Getenv(envKey); v != "" {
			c.Providers[i].Token = v
		}
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	rt := &c.Realtime
	if rt.ConnectTimeoutSeconds <= 0 {
		rt.ConnectTimeoutSeconds = 10
	}
	if rt.InitialReconnectDelaySecs <= 0 {
		rt.InitialReconnectDelaySecs = 3
	}
	if rt.MinReconnectDelaySecs <= 0 {
		rt.MinReconnectDelaySecs = 3
	}
	if rt.MaxReconnectDelaySecs <= 0 {
		rt.MaxReconnectDelaySecs = 60
	}
	if rt.MaxReconnectAttempts <= 0 {
		rt.MaxReconnectAttempts = 5
	}
	if rt.RateLimitCooldownSecs <= 0 {
		rt.RateLimitCooldownSecs = 60
	}
	if rt.SettleDelayMs <= 0 {
		rt.SettleDelayMs = 1000
	}
	if rt.BarRingCapacity <= 0 {
		rt.BarRingCapacity = 3600
	}

	if c.Proxy.RequestTimeout <= 0 {
		c.Proxy.RequestTimeout = 15
	}
	if c.Proxy.MaxBodyBytes <= 0 {
		c.Proxy.MaxBodyBytes = 4 << 20
	}
	if c.Proxy.RateLimitPerMinute <= 0 {
		c.Proxy.RateLimitPerMinute = 60
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Providers
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d must have a name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name '%s'", p.Name)
		}
		seen[p.Name] = true
		if p.URL == "" {
			return fmt.Errorf("provider '%s' must have a url", p.Name)
		}
		if !strings.HasPrefix(p.URL, "ws://") && !strings.HasPrefix(p.URL, "wss://") {
			return fmt.Errorf("provider '%s' url must be a ws:// or wss:// endpoint", p.Name)
		}
	}

	// Validate Widgets
	for i, w := range c.Widgets {
		if w.ID == "" {
			return fmt.Errorf("widget %d must have an id", i)
		}
		if w.Provider != "" && !seen[w.Provider] {
			return fmt.Errorf("widget '%s' references unknown provider '%s'", w.ID, w.Provider)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Provider returns the provider config by name.
func (c *Config) Provider(name string) (models.MProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return models.MProviderConfig{}, false
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
