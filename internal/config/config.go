package config

import (
	"fmt"

	"orderflow/pkg/config"
)

type Config struct {
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	Otel   config.OtelConfig   `yaml:"otel"`
	Worker config.WorkerConfig `yaml:"worker"`

	Evaluator config.EvaluatorConfig `yaml:"evaluator"`
}

// Load 使用统一配置中心：base.yaml + <env>.yaml + secrets.env，最后环境变量覆盖
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOtelFromEnv(&cfg.Otel)
	config.OverrideEvaluatorFromEnv(&cfg.Evaluator)

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Worker.OverdueSweepCron == "" {
		cfg.Worker.OverdueSweepCron = "@every 1h"
	}
	if cfg.Worker.OutboxReplayCron == "" {
		cfg.Worker.OutboxReplayCron = "*/15 * * * *"
	}
	if cfg.Worker.MaxRetries <= 0 {
		cfg.Worker.MaxRetries = 3
	}
}
