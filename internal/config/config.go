// Package config provides configuration loading and management for veritest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Reasoning ReasoningConfig `json:"reasoning" mapstructure:"reasoning"`
	Sandbox   SandboxConfig   `json:"sandbox"   mapstructure:"sandbox"`
	Budgets   Budgets         `json:"budgets"   mapstructure:"budgets"`
	Retention RetentionPolicy `json:"retention" mapstructure:"retention"`
	Server    ServerConfig    `json:"server"    mapstructure:"server"`
}

// ReasoningConfig describes the external reasoning service.
type ReasoningConfig struct {
	Model     string        `json:"model"                 mapstructure:"model"`
	BaseURL   string        `json:"base_url,omitempty"    mapstructure:"base_url"`
	APIKeyEnv string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Timeout   time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
}

// SandboxConfig describes the execution sandbox.
type SandboxConfig struct {
	Image   string        `json:"image,omitempty"   mapstructure:"image"`
	Timeout time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
}

// Budgets defines session limits.
type Budgets struct {
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`
}

// RetentionPolicy defines how many finished sessions to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// ServerConfig describes the web API listener.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reasoning.model", "gpt-5")
	v.SetDefault("reasoning.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("reasoning.timeout", "120s")
	v.SetDefault("sandbox.image", "veritest-runner:latest")
	v.SetDefault("sandbox.timeout", "60s")
	v.SetDefault("budgets.max_iterations", 5)
	v.SetDefault("retention.keep_last", 50)
	v.SetDefault("server.addr", "127.0.0.1:8187")
}

// Load reads the config file at path, validates it against the embedded
// schema, and unmarshals it on top of the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Budgets.MaxIterations <= 0 {
		return Config{}, fmt.Errorf("budgets.max_iterations must be > 0")
	}
	if cfg.Sandbox.Timeout <= 0 {
		return Config{}, fmt.Errorf("sandbox.timeout must be > 0")
	}
	return cfg, nil
}
