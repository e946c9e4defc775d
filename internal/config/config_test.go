package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.APIBaseURL != "http://localhost:8001" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://localhost:8001")
	}
	if cfg.RequestTimeout != "10s" {
		t.Errorf("RequestTimeout = %q, want %q", cfg.RequestTimeout, "10s")
	}
	if cfg.StateDBPath != "./scratcha-console.db" {
		t.Errorf("StateDBPath = %q, want default", cfg.StateDBPath)
	}
	if cfg.SessionMaxIdle != "24h" {
		t.Errorf("SessionMaxIdle = %q, want %q", cfg.SessionMaxIdle, "24h")
	}
	if cfg.ActivityPingInterval != "5m" {
		t.Errorf("ActivityPingInterval = %q, want %q", cfg.ActivityPingInterval, "5m")
	}
	if cfg.ExpiryCheckInterval != "1h" {
		t.Errorf("ExpiryCheckInterval = %q, want %q", cfg.ExpiryCheckInterval, "1h")
	}
	if cfg.OTLPEndpoint != "" {
		t.Errorf("OTLPEndpoint = %q, want empty", cfg.OTLPEndpoint)
	}
	if cfg.OTLPInsecure {
		t.Error("OTLPInsecure should default to false")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "https://api.scratcha.example")
	os.Setenv("REQUEST_TIMEOUT", "3s")
	os.Setenv("SESSION_MAX_IDLE", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://api.scratcha.example" {
		t.Errorf("APIBaseURL = %q, want override", cfg.APIBaseURL)
	}
	if got := cfg.RequestTimeoutDuration(); got != 3*time.Second {
		t.Errorf("RequestTimeoutDuration = %v, want 3s", got)
	}
	if got := cfg.SessionMaxIdleDuration(); got != 48*time.Hour {
		t.Errorf("SessionMaxIdleDuration = %v, want 48h", got)
	}
}

func TestDurationAccessors_FallBackOnInvalid(t *testing.T) {
	cfg := &Config{
		RequestTimeout:       "not-a-duration",
		SessionMaxIdle:       "-5h",
		ActivityPingInterval: "",
		ExpiryCheckInterval:  "zero",
	}
	if got := cfg.RequestTimeoutDuration(); got != 10*time.Second {
		t.Errorf("RequestTimeoutDuration = %v, want 10s fallback", got)
	}
	if got := cfg.SessionMaxIdleDuration(); got != 24*time.Hour {
		t.Errorf("SessionMaxIdleDuration = %v, want 24h fallback", got)
	}
	if got := cfg.ActivityPingDuration(); got != 5*time.Minute {
		t.Errorf("ActivityPingDuration = %v, want 5m fallback", got)
	}
	if got := cfg.ExpiryCheckDuration(); got != time.Hour {
		t.Errorf("ExpiryCheckDuration = %v, want 1h fallback", got)
	}
}
