// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables redis-backed rate limiting
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type SynthesisConfig struct {
	Provider string `yaml:"provider"` // openai | gemini

	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`

	GeminiKey   string `yaml:"gemini_key"`
	GeminiModel string `yaml:"gemini_model"`

	ConcurrentLimit int           `yaml:"concurrent_limit"` // admission gate capacity
	Timeout         time.Duration `yaml:"timeout"`          // 0 disables enforcement
}

type StorageConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type LimitsConfig struct {
	MaxTextLength   int      `yaml:"max_text_length"`
	MaxAudioBytes   int64    `yaml:"max_audio_bytes"`
	AudioExtensions []string `yaml:"audio_extensions"`
	SubmitPerMinute int      `yaml:"submit_per_minute"` // 0 disables
}

type RetentionConfig struct {
	Window        time.Duration `yaml:"window"` // 0 disables sweeping
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Storage   StorageConfig   `yaml:"storage"`
	Limits    LimitsConfig    `yaml:"limits"`
	Retention RetentionConfig `yaml:"retention"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Retention.Window < 0 {
		return nil, errors.New("retention.window must not be negative")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.Synthesis.Provider == "" {
		cfg.Synthesis.Provider = "openai"
	}
	if cfg.Synthesis.OpenAIBaseURL == "" {
		cfg.Synthesis.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.Synthesis.OpenAIModel == "" {
		cfg.Synthesis.OpenAIModel = "gpt-4o-mini-tts"
	}
	if cfg.Synthesis.GeminiModel == "" {
		cfg.Synthesis.GeminiModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.Synthesis.ConcurrentLimit <= 0 {
		cfg.Synthesis.ConcurrentLimit = 3
	}
	if cfg.Synthesis.Timeout < 0 {
		cfg.Synthesis.Timeout = 0
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "./data/outputs"
	}
	if cfg.Limits.MaxTextLength <= 0 {
		cfg.Limits.MaxTextLength = 500
	}
	if cfg.Limits.MaxAudioBytes <= 0 {
		cfg.Limits.MaxAudioBytes = 10 << 20
	}
	if len(cfg.Limits.AudioExtensions) == 0 {
		cfg.Limits.AudioExtensions = []string{
			".wav", ".mp3", ".aac", ".m4a", ".flac", ".ogg", ".opus",
		}
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = 10 * time.Minute
	}
}
