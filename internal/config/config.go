package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"reveal-challenge-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Entities struct {
		TTL   string `yaml:"ttl"`
		Limit int    `yaml:"limit"`
	} `yaml:"entities"`
	Assets struct {
		Dir      string `yaml:"dir"`
		Category string `yaml:"category"`
	} `yaml:"assets"`
	Challenge ChallengeConfig `yaml:"challenge"`
}

type ChallengeConfig struct {
	PreFill        string          `yaml:"prefill"`
	FrameInterval  string          `yaml:"frame_interval"`
	DefaultVariant string          `yaml:"default_variant"`
	Variants       []VariantConfig `yaml:"variants"`
}

// VariantConfig declares a variant; a name matching a built-in replaces it.
type VariantConfig struct {
	Name    string        `yaml:"name"`
	Mode    string        `yaml:"mode"`
	Penalty int           `yaml:"penalty"`
	Stages  []StageConfig `yaml:"stages"`
}

type StageConfig struct {
	TimeBudget float64 `yaml:"time_budget"`
	Options    int     `yaml:"options"`
	Reward     int     `yaml:"reward"`
}

// Load reads YAML config from path, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.Postgres.URL, "DATABASE_URL")
	override(&c.Assets.Dir, "ASSETS_DIR")
	override(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.Entities.Limit <= 0 {
		c.Entities.Limit = 120
	}
	if c.Assets.Category == "" {
		c.Assets.Category = "characters"
	}
	if c.Challenge.DefaultVariant == "" {
		c.Challenge.DefaultVariant = "center-tile"
	}
}

// Variants returns the built-in variants overlaid with the configured ones.
// Every catalog is validated and the default variant must exist.
func (c Config) Variants() (map[string]domain.Variant, error) {
	variants := domain.DefaultVariants()
	for _, vc := range c.Challenge.Variants {
		if vc.Name == "" {
			return nil, fmt.Errorf("variant without name")
		}
		mode, err := domain.ParseRenderMode(vc.Mode)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", vc.Name, err)
		}
		if vc.Penalty < 0 {
			return nil, fmt.Errorf("variant %s: penalty must not be negative", vc.Name)
		}
		stages := make([]domain.StageSpec, 0, len(vc.Stages))
		for _, s := range vc.Stages {
			stages = append(stages, domain.Stage(s.TimeBudget, s.Options, s.Reward))
		}
		variants[vc.Name] = domain.Variant{
			Name:    vc.Name,
			Mode:    mode,
			Catalog: domain.NewCatalog(stages...),
			Penalty: vc.Penalty,
		}
	}
	for name, v := range variants {
		if err := v.Catalog.Validate(); err != nil {
			return nil, fmt.Errorf("variant %s: %w", name, err)
		}
	}
	if _, ok := variants[c.Challenge.DefaultVariant]; !ok {
		return nil, fmt.Errorf("%w: default %s", domain.ErrVariantNotFound, c.Challenge.DefaultVariant)
	}
	return variants, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
