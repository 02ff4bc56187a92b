package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Errorf("expected default driver sqlite, got %s", cfg.DBDriver)
	}
	if cfg.AssistantAPIURL != "http://localhost:8000" {
		t.Errorf("unexpected default assistant url: %s", cfg.AssistantAPIURL)
	}
	if cfg.DefaultLLMModel != "nemotron" {
		t.Errorf("unexpected default model: %s", cfg.DefaultLLMModel)
	}
	if cfg.SessionRetention != 0 {
		t.Errorf("expected retention disabled by default, got %v", cfg.SessionRetention)
	}
	if cfg.MaintenanceMode {
		t.Error("expected maintenance mode off by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAINTENANCE_MODE", "true")
	t.Setenv("SESSION_RETENTION", "72h")
	t.Setenv("DEFAULT_LLM_MODEL", "mistral")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if !cfg.MaintenanceMode {
		t.Error("expected maintenance mode on")
	}
	if cfg.SessionRetention != 72*time.Hour {
		t.Errorf("expected 72h retention, got %v", cfg.SessionRetention)
	}
	if cfg.DefaultLLMModel != "mistral" {
		t.Errorf("expected model mistral, got %s", cfg.DefaultLLMModel)
	}
}

func TestPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing for postgres")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/gitsight?sslmode=disable")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBDriver != DriverPostgres {
		t.Errorf("expected postgres driver, got %s", cfg.DBDriver)
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"https://gitsight.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_RETENTION", "not-a-duration")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionRetention != 0 {
		t.Errorf("expected fallback retention 0, got %v", cfg.SessionRetention)
	}
}
