package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reveal-challenge-service/internal/domain"
)

const sample = `
server:
  port: "9090"
entities:
  ttl: 5m
challenge:
  prefill: 400ms
  default_variant: blitz
  variants:
    - name: blitz
      mode: silhouette
      penalty: 3
      stages:
        - {time_budget: 4, options: 3, reward: 10}
        - {time_budget: 2.5, options: 4, reward: 20}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndVariants(t *testing.T) {
	t.Setenv("ASSETS_DIR", "/srv/assets")
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Entities.Limit != 120 || cfg.Assets.Category != "characters" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Assets.Dir != "/srv/assets" {
		t.Fatalf("env override not applied: %q", cfg.Assets.Dir)
	}
	if TTLDuration(cfg.Challenge.PreFill, time.Second) != 400*time.Millisecond {
		t.Fatalf("prefill not parsed")
	}

	variants, err := cfg.Variants()
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	blitz := variants["blitz"]
	if blitz.Mode != domain.Silhouette || len(blitz.Catalog) != 2 || blitz.Catalog[1].TimeBudget != 2500*time.Millisecond {
		t.Fatalf("unexpected blitz %+v", blitz)
	}
	if _, ok := variants["center-tile"]; !ok {
		t.Fatalf("built-in variants should remain")
	}
}

func TestVariantsRejectsInvalidCatalog(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
challenge:
  variants:
    - name: broken
      mode: center-tile
      stages:
        - {time_budget: 0, options: 4, reward: 10}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.Variants(); !errors.Is(err, domain.ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestVariantsRequiresDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, "challenge:\n  default_variant: missing\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.Variants(); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestTTLDuration(t *testing.T) {
	if TTLDuration("", time.Minute) != time.Minute || TTLDuration("bogus", time.Minute) != time.Minute {
		t.Fatalf("fallback not used")
	}
	if TTLDuration("90s", time.Minute) != 90*time.Second {
		t.Fatalf("duration not parsed")
	}
}
