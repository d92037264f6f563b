package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	General struct {
		DefaultSite string `koanf:"default_site"`
		LogLevel    string `koanf:"log_level"`
		RunsDir     string `koanf:"runs_dir"`
	} `koanf:"general"`

	Sites map[string]map[string]interface{} `koanf:"sites"`

	Post struct {
		PaceEvery   int `koanf:"pace_every"`
		PaceDelayMS int `koanf:"pace_delay_ms"`
	} `koanf:"post"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"general.default_site": "gitlab",
		"general.log_level":    "info",
		"post.pace_every":      5,
		"post.pace_delay_ms":   2000,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./issuer.toml", "$HOME/.issuer.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix ISSUER_
	k.Load(env.Provider("ISSUER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ISSUER_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# issuer configuration

[general]
default_site = "gitlab"
log_level = "info"
# runs_dir = "/path/to/run/records"

[sites.gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"

[sites.github]
token = "your-github-token"

[post]
pace_every = 5
pace_delay_ms = 2000
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.General.DefaultSite == "" {
		return fmt.Errorf("default site is required")
	}

	siteConfig, ok := config.Sites[config.General.DefaultSite]
	if !ok {
		return fmt.Errorf("configuration for site %s not found", config.General.DefaultSite)
	}

	// Validate site config
	switch config.General.DefaultSite {
	case "gitlab":
		if _, ok := siteConfig["url"]; !ok {
			return fmt.Errorf("gitlab url is required")
		}
		if _, ok := siteConfig["token"]; !ok {
			return fmt.Errorf("gitlab token is required")
		}
	case "github":
		if _, ok := siteConfig["token"]; !ok {
			return fmt.Errorf("github token is required")
		}
	}

	return nil
}
