// Package config loads the hub's TOML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk hermesd.toml.
type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Auth   AuthConfig   `toml:"auth"`
	Log    LogConfig    `toml:"log"`
	Hub    HubConfig    `toml:"hub"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type LogConfig struct {
	Path string `toml:"path"`
}

type HubConfig struct {
	SendBuffer   int     `toml:"send_buffer"`
	FramesPerSec float64 `toml:"frames_per_sec"`
	FrameBurst   int     `toml:"frame_burst"`
}

// Default returns the baked-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":8080"},
		Store:  StoreConfig{Path: "hermes.db"},
		Log:    LogConfig{Path: "hermesd.log"},
		Hub: HubConfig{
			SendBuffer:   256,
			FramesPerSec: 20,
			FrameBurst:   40,
		},
	}
}

// Load reads config from path, layering the file over defaults. The
// HERMES_JWT_SECRET environment variable overrides the file value.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if s := os.Getenv("HERMES_JWT_SECRET"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: auth.jwt_secret is required")
	}
	return cfg, nil
}
