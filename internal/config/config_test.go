package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FEE_THRESHOLD_RATIO", "")
	t.Setenv("LEDGER_RUNNING", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := Load()
	if cfg.FeeThresholdRatio != 1000 {
		t.Errorf("FeeThresholdRatio = %d", cfg.FeeThresholdRatio)
	}
	if !cfg.LedgerRunning {
		t.Error("ledger should run by default")
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "0:"+"ab")
	t.Setenv("FEE_AMOUNT_NANO", "29000")
	t.Setenv("FEE_THRESHOLD_RATIO", "10")
	t.Setenv("LEDGER_RUNNING", "false")
	t.Setenv("TON_PROOF_ALLOWED_DOMAINS", " remit.example , ,app.remit.example")
	t.Setenv("EXPIRY_SCAN_INTERVAL_SECONDS", "15")
	t.Setenv("MAX_EXPIRY_EXTENSION_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.FeeAmountNano != 29000 || cfg.FeeThresholdRatio != 10 {
		t.Errorf("fee = %d/%d", cfg.FeeAmountNano, cfg.FeeThresholdRatio)
	}
	if cfg.LedgerRunning {
		t.Error("LEDGER_RUNNING=false ignored")
	}
	if len(cfg.TONProofAllowedDomains) != 2 || cfg.TONProofAllowedDomains[1] != "app.remit.example" {
		t.Errorf("domains = %v", cfg.TONProofAllowedDomains)
	}
	if cfg.ExpiryScanInterval != 15*time.Second {
		t.Errorf("ExpiryScanInterval = %s", cfg.ExpiryScanInterval)
	}
	if cfg.MaxExpiryExtension != 30*24*3600 {
		t.Errorf("bad value should fall back to default, got %d", cfg.MaxExpiryExtension)
	}
}

func TestValidate(t *testing.T) {
	log := zap.NewNop()
	base := func() *Config {
		return &Config{
			OwnerAddress:       "0:00",
			FeeThresholdRatio:  10,
			StoreDriver:        StoreDriverMemory,
			ExpiryScanInterval: time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"no owner", func(c *Config) { c.OwnerAddress = "" }, true},
		{"ratio zero", func(c *Config) { c.FeeThresholdRatio = 0 }, true},
		{"ratio too big", func(c *Config) { c.FeeThresholdRatio = 1001 }, true},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, true},
		{"no scan interval", func(c *Config) { c.ExpiryScanInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate(log)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
