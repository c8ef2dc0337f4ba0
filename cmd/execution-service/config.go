package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gradex/internal/common/cache"
	"gradex/internal/execution/quota"
	"gradex/internal/execution/sandbox/engine"
	"gradex/pkg/utils/logger"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Server  ServerConfig      `yaml:"server"`
	Log     logger.Config     `yaml:"log"`
	Redis   cache.RedisConfig `yaml:"redis"`
	Sandbox engine.Config     `yaml:"sandbox"`
	Quota   quota.Config      `yaml:"quota"`

	// PoolSize bounds concurrent sandbox runs across all requests.
	PoolSize int `yaml:"poolSize"`

	// WorkRoot is the parent dir for per-run scratch workspaces.
	WorkRoot string `yaml:"workRoot"`

	// RunRecordTTL controls how long finished run results stay fetchable.
	RunRecordTTL time.Duration `yaml:"runRecordTtl"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Redis: *cache.DefaultRedisConfig(),
		Sandbox: engine.Config{
			HelperPath:       "/usr/local/bin/sandbox-init",
			EnableSeccomp:    true,
			EnableCgroup:     true,
			EnableNamespaces: true,
		},
		Quota:        quota.DefaultConfig(),
		PoolSize:     8,
		WorkRoot:     "/tmp/gradex",
		RunRecordTTL: 24 * time.Hour,
	}
}

// loadAppConfig reads the yaml config file over the defaults. A missing
// path means defaults only.
func loadAppConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return cfg, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.PoolSize <= 0 {
		return cfg, fmt.Errorf("poolSize must be positive")
	}
	return cfg, nil
}
