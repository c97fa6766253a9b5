// Package config provides configuration management for the flight server
// and client tooling using Viper for flexible loading from files,
// environment variables, and command-line flags.
//
// Configuration is read from .flight.yml with FLIGHT_ environment variable
// overrides. It covers server settings, render behavior, client fetch
// policy, and the client-component manifest.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvKeyReplacer maps nested config keys to FLIGHT_ environment names
// ("render.mode" reads FLIGHT_RENDER_MODE).
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Render   RenderConfig   `yaml:"render"`
	Client   ClientConfig   `yaml:"client"`
	Resolver ResolverConfig `yaml:"resolver"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Environment    string   `yaml:"environment"`
}

type RenderConfig struct {
	// Mode selects "streaming" or "eager" boundary handling.
	Mode     string `yaml:"mode"`
	MaxDepth int    `yaml:"max_depth"`
}

type ClientConfig struct {
	// Endpoints are tried in order until one answers.
	Endpoints []string      `yaml:"endpoints"`
	Retries   int           `yaml:"retries"`
	Backoff   time.Duration `yaml:"backoff"`
}

type ResolverConfig struct {
	// Manifest is the YAML file declaring client components.
	Manifest string `yaml:"manifest"`
	// Watch reloads the manifest when the file changes.
	Watch bool `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds a Config from whatever viper has accumulated: config file,
// FLIGHT_ environment variables, and bound command-line flags.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Viper leaves slices and bools unmarshalled in some flag/env
	// combinations; read them explicitly when set.
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}
	if viper.IsSet("client.endpoints") && len(config.Client.Endpoints) == 0 {
		config.Client.Endpoints = viper.GetStringSlice("client.endpoints")
	}
	if viper.IsSet("resolver.watch") {
		config.Resolver.Watch = viper.GetBool("resolver.watch")
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8120
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Render.Mode == "" {
		config.Render.Mode = "streaming"
	}
	if config.Render.MaxDepth == 0 {
		config.Render.MaxDepth = 100
	}
	if config.Client.Retries == 0 {
		config.Client.Retries = 2
	}
	if config.Client.Backoff == 0 {
		config.Client.Backoff = 250 * time.Millisecond
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}
