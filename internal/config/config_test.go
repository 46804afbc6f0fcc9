package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfigYAML = `
system:
  instance_id: test-01
  log_level: INFO
  timezone: UTC
venues:
  kcex:
    enabled: true
    ws_url: wss://stream.example/ws
    rest_url: https://api.example
arbitrage:
  notional_per_trade_usd: 500
  net_threshold_bps: 5
  max_slippage_bps: 30
  staleness_horizon_ms: 1500
  dry_run: true
  heartbeat_secs: 30
monitoring:
  metrics_port: 9090
persistence:
  persistence_path: "data/%s.db"
  cold_store_pool_size: 5
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_ParsesAndValidatesMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, testConfigYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.System.InstanceID != "test-01" {
		t.Errorf("InstanceID = %q, want test-01", cfg.System.InstanceID)
	}
	if cfg.Arbitrage.NetThresholdBps != 5 {
		t.Errorf("NetThresholdBps = %d, want 5", cfg.Arbitrage.NetThresholdBps)
	}
	venue, ok := cfg.Venues["kcex"]
	if !ok || !venue.Enabled {
		t.Fatalf("expected kcex venue to be present and enabled, got %+v ok=%v", venue, ok)
	}
	if got := cfg.Arbitrage.TakerFee; got != 0.001 {
		t.Errorf("TakerFee default = %v, want 0.001", got)
	}
}

func TestLoad_MissingRequiredFieldFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
system:
  instance_id: test-01
  log_level: INFO
  timezone: UTC
venues: {}
arbitrage:
  notional_per_trade_usd: 500
  max_slippage_bps: 30
  staleness_horizon_ms: 1500
monitoring:
  metrics_port: 9090
persistence:
  persistence_path: "data/%s.db"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing net_threshold_bps")
	}
}

func TestGet_ReturnsLastLoadedConfig(t *testing.T) {
	path := writeTempConfig(t, testConfigYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Get() != cfg {
		t.Error("Get() did not return the most recently loaded config")
	}
}
