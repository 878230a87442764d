package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.CoalesceIntervalMS != 50 {
		t.Fatalf("CoalesceIntervalMS = %d, want 50", cfg.CoalesceIntervalMS)
	}
	if cfg.TruncateThreshold != 20000 {
		t.Fatalf("TruncateThreshold = %d, want 20000", cfg.TruncateThreshold)
	}
	if cfg.TruncateHeadRatio != 0.65 {
		t.Fatalf("TruncateHeadRatio = %v, want 0.65", cfg.TruncateHeadRatio)
	}
	if cfg.BridgePort != 4810 {
		t.Fatalf("BridgePort = %d, want 4810", cfg.BridgePort)
	}
	if !cfg.DebugServerEnabled {
		t.Fatal("DebugServerEnabled should default true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COALESCE_INTERVAL_MS", "100")
	t.Setenv("TRUNCATE_THRESHOLD", "40000")
	cfg := Load()
	if cfg.CoalesceIntervalMS != 100 {
		t.Fatalf("CoalesceIntervalMS = %d, want 100", cfg.CoalesceIntervalMS)
	}
	if cfg.TruncateThreshold != 40000 {
		t.Fatalf("TruncateThreshold = %d, want 40000", cfg.TruncateThreshold)
	}
}

func TestLoad_MinClamp(t *testing.T) {
	t.Setenv("COALESCE_INTERVAL_MS", "0")
	cfg := Load()
	if cfg.CoalesceIntervalMS != 1 {
		t.Fatalf("CoalesceIntervalMS = %d, want min-clamped 1", cfg.CoalesceIntervalMS)
	}
}
