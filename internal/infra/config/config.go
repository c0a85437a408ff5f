// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config path relative to the XDG config home.
const DefaultFileName = "cuebox/config.yaml"

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Spotify   SpotifyConfig   `yaml:"spotify"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Replenish ReplenishConfig `yaml:"replenish"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr     string      `yaml:"addr" default:":8080"`
	APIToken string      `yaml:"api_token"` // Empty disables control API auth
	Hooks    HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File   string `yaml:"file"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	DeviceName   string `yaml:"device_name" default:"cuebox"`
	BaseURL      string `yaml:"base_url" validate:"omitempty,url"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	TrackEndCooldownMs  int `yaml:"track_end_cooldown_ms" default:"1000" validate:"gte=0,lte=10000"`
	RecommendationLimit int `yaml:"recommendation_limit" default:"20" validate:"gte=1,lte=100"`
	PollIntervalMs      int `yaml:"poll_interval_ms" default:"1000" validate:"gte=200,lte=60000"`
	DefaultVolume       int `yaml:"default_volume" default:"50" validate:"gte=0,lte=100"`
}

// ReplenishConfig represents queue replenishment configuration.
type ReplenishConfig struct {
	Providers []ProviderConfig        `yaml:"providers" validate:"dive"`
	Filters   map[string]FilterConfig `yaml:"filters"`
}

// ProviderConfig represents a single recommendation provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=spotify lastfm"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// DefaultPath returns the config file under the XDG config directories,
// falling back to config.yaml in the working directory.
func DefaultPath() string {
	if p, err := xdg.SearchConfigFile(DefaultFileName); err == nil {
		return p
	}
	return "config.yaml"
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	if len(cfg.Replenish.Providers) == 0 {
		cfg.Replenish.Providers = []ProviderConfig{{Type: "spotify"}}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Replenish.Providers {
			if c.Replenish.Providers[i].Type == "lastfm" {
				if c.Replenish.Providers[i].Settings == nil {
					c.Replenish.Providers[i].Settings = map[string]any{}
				}
				c.Replenish.Providers[i].Settings["api_key"] = v
			}
		}
	}
	if v := os.Getenv("CUEBOX_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled. Filters absent from the
// configuration are enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Replenish.Filters[filterName]; ok {
		return f.Enabled
	}
	return true
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Replenish.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// TrackEndCooldown returns the track-end latch release delay.
func (c *Config) TrackEndCooldown() time.Duration {
	return time.Duration(c.Playback.TrackEndCooldownMs) * time.Millisecond
}

// PollInterval returns the device session poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Playback.PollIntervalMs) * time.Millisecond
}
