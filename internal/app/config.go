// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// DataDirEnv names the environment variable pointing at the swarm data
// directory, the same convention LOOM_DATA_DIR follows for loom.
const DataDirEnv = "SWARM_DATA_DIR"

// Config is the fully resolved process configuration: CLI flags override
// environment variables, which override viper-bound config file values,
// which override these defaults. Resolved once at startup and threaded
// through explicitly rather than read from the environment ad hoc.
type Config struct {
	ConfigRoot string `mapstructure:"config_root"`
	RunsRoot   string `mapstructure:"runs_root"`

	Backend         string `mapstructure:"backend"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`

	StrictEnvelopeValidation bool `mapstructure:"strict_envelope_validation"`
	ProjectionOnly           bool `mapstructure:"db_projection_only"`
	ProjectionStrict         bool `mapstructure:"db_projection_strict"`
	ProjectionDBPath         string `mapstructure:"projection_db_path"`

	EvolutionApplyPolicy swarmtypes.EvolutionApplyPolicy `mapstructure:"evolution_apply_policy"`

	EnableTracing bool   `mapstructure:"enable_tracing"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	HTTPAddr      string `mapstructure:"http_addr"`
	SweepCron     string `mapstructure:"sweep_cron"`
	EnableFSWatch bool   `mapstructure:"enable_fs_watch"`
}

// DataDir returns SWARM_DATA_DIR, defaulting to ~/.swarm.
func DataDir() string {
	if d := os.Getenv(DataDirEnv); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".swarm"
	}
	return filepath.Join(home, ".swarm")
}

// LoadConfig reads cfgFile (if non-empty) plus "<SWARM_DATA_DIR>/swarm.yaml"
// plus SWARM_-prefixed environment variables into a Config, following
// viper's standard precedence (explicit Set/flags > env > config file >
// default).
func LoadConfig(v *viper.Viper, cfgFile string) (Config, error) {
	dataDir := DataDir()

	v.SetDefault("config_root", filepath.Join(dataDir, "flows"))
	v.SetDefault("runs_root", filepath.Join(dataDir, "runs"))
	v.SetDefault("backend", "claude")
	v.SetDefault("anthropic_model", "claude-sonnet-4-5")
	v.SetDefault("evolution_apply_policy", string(swarmtypes.PolicySuggestOnly))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("http_addr", ":8090")
	v.SetDefault("sweep_cron", "*/30 * * * * *")
	v.SetDefault("enable_fs_watch", true)

	v.SetEnvPrefix("SWARM")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("swarm")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("app: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: unmarshal config: %w", err)
	}

	// SWARM_STRICT_ENVELOPE_VALIDATION and friends are the literal
	// environment variable names the rest of the codebase already reads;
	// honor them here too so both naming schemes agree.
	if os.Getenv("SWARM_STRICT_ENVELOPE_VALIDATION") == "true" {
		cfg.StrictEnvelopeValidation = true
	}
	if os.Getenv("SWARM_DB_PROJECTION_ONLY") == "true" {
		cfg.ProjectionOnly = true
	}
	if os.Getenv("SWARM_DB_PROJECTION_STRICT") == "true" {
		cfg.ProjectionStrict = true
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = key
	}

	return cfg, nil
}

func (c Config) logger() *zap.Logger {
	var zcfg zap.Config
	if c.LogFormat == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
