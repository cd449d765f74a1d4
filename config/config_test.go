package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juniorT34/disposable-backend/routing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("PARENT_DOMAIN", "")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != routing.EnvDevelopment {
		t.Fatalf("expected development default, got %s", cfg.Environment)
	}
	if cfg.DefaultSessionDuration != time.Hour {
		t.Fatalf("unexpected default duration %s", cfg.DefaultSessionDuration)
	}
	if cfg.MaxSessionAge != 4*time.Hour {
		t.Fatalf("unexpected max age %s", cfg.MaxSessionAge)
	}
	if cfg.SweepInterval != 60*time.Second {
		t.Fatalf("unexpected sweep interval %s", cfg.SweepInterval)
	}
	if cfg.MaxSessionsPerUser != 3 {
		t.Fatalf("unexpected per-user limit %d", cfg.MaxSessionsPerUser)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port %s", cfg.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("PARENT_DOMAIN", "")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	data := []byte(`environment: production
parent_domain: disposable.example.org
sessions:
  default_duration: 30m
  max_age: 2h
  max_extend: 15m
  sweep_interval: 45s
  retention: 10m
  max_per_user: 5
runtime:
  timeout: 20s
`)
	if err := os.WriteFile(filepath.Join(dir, "disposable.config.yml"), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != routing.EnvProduction {
		t.Fatalf("expected production, got %s", cfg.Environment)
	}
	if cfg.ParentDomain != "disposable.example.org" {
		t.Fatalf("unexpected parent domain %s", cfg.ParentDomain)
	}
	if cfg.DefaultSessionDuration != 30*time.Minute {
		t.Fatalf("unexpected duration %s", cfg.DefaultSessionDuration)
	}
	if cfg.MaxSessionAge != 2*time.Hour {
		t.Fatalf("unexpected max age %s", cfg.MaxSessionAge)
	}
	if cfg.MaxExtend != 15*time.Minute {
		t.Fatalf("unexpected max extend %s", cfg.MaxExtend)
	}
	if cfg.SweepInterval != 45*time.Second {
		t.Fatalf("unexpected sweep interval %s", cfg.SweepInterval)
	}
	if cfg.Retention != 10*time.Minute {
		t.Fatalf("unexpected retention %s", cfg.Retention)
	}
	if cfg.RuntimeTimeout != 20*time.Second {
		t.Fatalf("unexpected runtime timeout %s", cfg.RuntimeTimeout)
	}
	if cfg.MaxSessionsPerUser != 5 {
		t.Fatalf("unexpected per-user limit %d", cfg.MaxSessionsPerUser)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PARENT_DOMAIN", "override.example.org")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/disposable")

	data := []byte("environment: development\nparent_domain: file.example.org\n")
	if err := os.WriteFile(filepath.Join(dir, "disposable.config.yml"), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != routing.EnvProduction {
		t.Fatalf("expected env override, got %s", cfg.Environment)
	}
	if cfg.ParentDomain != "override.example.org" {
		t.Fatalf("expected domain override, got %s", cfg.ParentDomain)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost/disposable" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad environment", "environment: staging\n"},
		{"bad duration", "sessions:\n  default_duration: soon\n"},
		{"negative duration", "sessions:\n  sweep_interval: -10s\n"},
		{"duration exceeds max age", "sessions:\n  default_duration: 5h\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			t.Setenv("ENVIRONMENT", "")
			t.Setenv("PARENT_DOMAIN", "")
			t.Setenv("PORT", "")
			t.Setenv("DATABASE_URL", "")

			if err := os.WriteFile(filepath.Join(dir, "disposable.config.yml"), []byte(tc.yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}
