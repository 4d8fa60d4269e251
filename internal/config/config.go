package config

import (
	"log"
	"time"

	"gopkg.in/yaml.v3"

	"aimate/pkg/config"
)

type Config struct {
	Server    config.ServerConfig    `yaml:"server"`
	DB        config.DBConfig        `yaml:"db"`
	Redis     config.RedisConfig     `yaml:"redis"`
	MQ        config.MQConfig        `yaml:"mq"`
	JWT       config.JWTConfig       `yaml:"jwt"`
	OpenAI    config.OpenAIConfig    `yaml:"openai"`
	Gmail     config.GmailConfig     `yaml:"gmail"`
	Otel      config.OtelConfig      `yaml:"otel"`
	Cache     config.CacheConfig     `yaml:"cache"`
	RateLimit config.RateLimitConfig `yaml:"ratelimit"`
}

func Load() *Config {
	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg, err := FromMap(cfgMap)
	if err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}
	return cfg
}

// FromMap 把合并后的配置 map 转成 Config，并应用默认值和环境变量覆盖
func FromMap(cfgMap map[string]interface{}) (*Config, error) {
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideOpenAIFromEnv(&cfg.OpenAI)
	config.OverrideGmailFromEnv(&cfg.Gmail)

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":5000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 180 * time.Second
	}
	if cfg.JWT.Expire == 0 {
		cfg.JWT.Expire = 7 * 24 * time.Hour
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 60 * time.Second
	}
	if cfg.OpenAI.TranscribeTimeout == 0 {
		cfg.OpenAI.TranscribeTimeout = 120 * time.Second
	}
	if cfg.Gmail.FetchCount <= 0 {
		cfg.Gmail.FetchCount = 20
	}
	if cfg.Gmail.Timeout == 0 {
		cfg.Gmail.Timeout = 30 * time.Second
	}
	if cfg.Gmail.SyncLockTTL == 0 {
		cfg.Gmail.SyncLockTTL = 2 * time.Minute
	}
	if cfg.Otel.ServiceName == "" {
		cfg.Otel.ServiceName = "aimate-api"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 2 * time.Minute
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = 500
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 1
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}
}
