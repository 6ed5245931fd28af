package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}
	if cfg.Detector.MinNotional != "500" {
		t.Fatalf("default min_notional = %q", cfg.Detector.MinNotional)
	}
	if cfg.History.Capacity != 100 {
		t.Fatalf("default history capacity = %d", cfg.History.Capacity)
	}
	if cfg.Server.HeartbeatInterval != 30*time.Second {
		t.Fatalf("default heartbeat = %s", cfg.Server.HeartbeatInterval)
	}
	if cfg.Chain.BackoffInitial != time.Second || cfg.Chain.BackoffMax != 30*time.Second {
		t.Fatalf("default backoff = %s..%s", cfg.Chain.BackoffInitial, cfg.Chain.BackoffMax)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("POLYGON_WSS_URL", "wss://polygon.example/ws")
	t.Setenv("MIN_USDC", "2500.5")
	t.Setenv("PORT", "9191")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.RPCURL != "wss://polygon.example/ws" {
		t.Fatalf("rpc_url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Detector.MinNotional != "2500.5" {
		t.Fatalf("min_notional = %q", cfg.Detector.MinNotional)
	}
	if cfg.Server.Port != 9191 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("TRADEWATCH_DETECTOR_MIN_NOTIONAL", "750")
	t.Setenv("MIN_USDC", "100")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Detector.MinNotional != "750" {
		t.Fatalf("min_notional = %q", cfg.Detector.MinNotional)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("chain:\n  rpc_url: https://polygon-rpc.example\n  poll_interval: 2s\nhistory:\n  capacity: 25\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.PollInterval != 2*time.Second {
		t.Fatalf("poll_interval = %s", cfg.Chain.PollInterval)
	}
	if cfg.History.Capacity != 25 {
		t.Fatalf("capacity = %d", cfg.History.Capacity)
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	t.Setenv("TRADEWATCH_DETECTOR_MIN_NOTIONAL", "five hundred")
	if _, err := Load(""); err == nil {
		t.Fatal("malformed threshold should fail validation")
	}
}

func TestValidateTelegramRequiresToken(t *testing.T) {
	t.Setenv("TRADEWATCH_ALERTING_TELEGRAM_ENABLED", "true")
	if _, err := Load(""); err == nil {
		t.Fatal("telegram without bot token should fail validation")
	}
}
