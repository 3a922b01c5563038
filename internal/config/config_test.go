package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_API_URL", "http://localhost:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.DBPath != "./data/convopilot.db" {
		t.Errorf("unexpected default db path %q", cfg.DBPath)
	}
	if cfg.AdminMode {
		t.Error("admin mode must default to off")
	}
	if cfg.Session.RequestTimeout != 60*time.Second {
		t.Errorf("unexpected default timeout %v", cfg.Session.RequestTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SESSION_API_URL", "http://api.example.com")
	t.Setenv("SESSION_API_MODEL", "gpt-test")
	t.Setenv("SESSION_API_TIMEOUT_SECONDS", "5")
	t.Setenv("ADMIN_MODE", "true")
	t.Setenv("VAULT_KEY", "abcd")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" || cfg.Session.Model != "gpt-test" || !cfg.AdminMode || cfg.VaultKey != "abcd" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Session.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Session.RequestTimeout)
	}
}

func TestLoadRequiresSessionAPIURL(t *testing.T) {
	t.Setenv("SESSION_API_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing session API URL")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Port:   "8080",
		DBPath: "./data/test.db",
		Session: SessionAPIConfig{
			BaseURL:        "http://localhost:9000",
			RequestTimeout: time.Minute,
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	broken := valid
	broken.Session.RequestTimeout = 0
	if err := broken.Validate(); err == nil {
		t.Fatal("zero timeout must be rejected")
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://app.example.com", false},
	}
	for _, tt := range tests {
		cfg := Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true}, {"true", true}, {"YES", true}, {"on", true},
		{"0", false}, {"false", false}, {"off", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := getEnvBool("TEST_BOOL", false); got != tt.want {
			t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
