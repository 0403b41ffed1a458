package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Monitor.Interval != 5*time.Minute {
		t.Errorf("default interval = %s, want 5m", cfg.Monitor.Interval)
	}
	if cfg.Monitor.MaxRowsPerSection != 10 {
		t.Errorf("default max_rows_per_section = %d, want 10", cfg.Monitor.MaxRowsPerSection)
	}
	if cfg.Chain.APIBase != "https://rest.cosmos.directory/symphony" {
		t.Errorf("default api_base = %q", cfg.Chain.APIBase)
	}
	if cfg.Chain.MaxAttempts != 3 {
		t.Errorf("default max_attempts = %d, want 3", cfg.Chain.MaxAttempts)
	}
	if cfg.Alerting.Destination != "discord" {
		t.Errorf("default destination = %q, want discord", cfg.Alerting.Destination)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled by default")
	}
	if cfg.Metrics.Listen != ":9311" {
		t.Errorf("default metrics listen = %q, want :9311", cfg.Metrics.Listen)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
monitor:
  interval: 30s
  low_balance_threshold: 2.5
alerting:
  destination: telegram
  telegram:
    bot_token: tok
    chat_id: "42"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("interval = %s, want 30s", cfg.Monitor.Interval)
	}
	if cfg.Alerting.Destination != "telegram" {
		t.Errorf("destination = %q, want telegram", cfg.Alerting.Destination)
	}
	if err := cfg.ValidateDelivery(); err != nil {
		t.Errorf("ValidateDelivery returned error: %v", err)
	}
	want := decimal.NewFromInt(2_500_000)
	if got := cfg.Monitor.LowBalanceThresholdBase(); !got.Equal(want) {
		t.Errorf("threshold in base units = %s, want %s", got, want)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ORACLEWATCH_MONITOR_INTERVAL", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Monitor.Interval != 90*time.Second {
		t.Errorf("interval = %s, want 90s", cfg.Monitor.Interval)
	}
}

func TestValidateRejectsUnknownDestination(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg.Alerting.Destination = "slack"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown destination")
	}
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg.Monitor.Interval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero interval")
	}
}

func TestValidateDeliveryRequiresCredentials(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.ValidateDelivery(); err == nil {
		t.Fatal("expected error for missing discord credentials")
	}
}

func TestResolveThreshold(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := cfg.ResolveThreshold(2.5); !got.Equal(decimal.NewFromInt(2_500_000)) {
		t.Errorf("override threshold = %s, want 2500000", got)
	}
	// no override falls back to the configured 1.0 MLD default
	if got := cfg.ResolveThreshold(0); !got.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("configured threshold = %s, want 1000000", got)
	}
}
