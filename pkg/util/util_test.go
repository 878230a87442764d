package util

import (
	"testing"
)

func TestClampInt(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{0, 0, 0, 0},
	}
	for _, tc := range cases {
		if got := ClampInt(tc.v, tc.lo, tc.hi); got != tc.want {
			t.Fatalf("ClampInt(%d, %d, %d) = %d, want %d", tc.v, tc.lo, tc.hi, got, tc.want)
		}
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("AB_TEST_INT", "42")
	if got := EnvInt("AB_TEST_INT", 7, 0); got != 42 {
		t.Fatalf("EnvInt = %d, want 42", got)
	}
	if got := EnvInt("AB_TEST_INT_MISSING", 7, 0); got != 7 {
		t.Fatalf("EnvInt default = %d, want 7", got)
	}
	t.Setenv("AB_TEST_INT", "-5")
	if got := EnvInt("AB_TEST_INT", 7, 1); got != 1 {
		t.Fatalf("EnvInt min clamp = %d, want 1", got)
	}
	t.Setenv("AB_TEST_INT", "not-a-number")
	if got := EnvInt("AB_TEST_INT", 7, 0); got != 7 {
		t.Fatalf("EnvInt invalid = %d, want 7", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("AB_TEST_BOOL", "yes")
	if !EnvBool("AB_TEST_BOOL", false) {
		t.Fatal("yes should be true")
	}
	t.Setenv("AB_TEST_BOOL", "off")
	if EnvBool("AB_TEST_BOOL", true) {
		t.Fatal("off should be false")
	}
	t.Setenv("AB_TEST_BOOL", "maybe")
	if !EnvBool("AB_TEST_BOOL", true) {
		t.Fatal("invalid should fall back to default")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("FirstNonEmpty = %q, want x", got)
	}
	if got := FirstNonEmpty("", "  "); got != "" {
		t.Fatalf("FirstNonEmpty = %q, want empty", got)
	}
}

type envTagged struct {
	Name     string  `env:"AB_LOAD_NAME" default:"bridge"`
	Interval int     `env:"AB_LOAD_INTERVAL" default:"50" min:"10"`
	Ratio    float64 `env:"AB_LOAD_RATIO" default:"0.65" min:"0"`
	Enabled  bool    `env:"AB_LOAD_ENABLED" default:"true"`
	Skipped  string  // no env tag
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	var cfg envTagged
	LoadFromEnv(&cfg)
	if cfg.Name != "bridge" {
		t.Fatalf("Name = %q", cfg.Name)
	}
	if cfg.Interval != 50 {
		t.Fatalf("Interval = %d", cfg.Interval)
	}
	if cfg.Ratio != 0.65 {
		t.Fatalf("Ratio = %v", cfg.Ratio)
	}
	if !cfg.Enabled {
		t.Fatal("Enabled should default true")
	}
}

func TestLoadFromEnv_OverridesAndMin(t *testing.T) {
	t.Setenv("AB_LOAD_INTERVAL", "5")
	t.Setenv("AB_LOAD_ENABLED", "no")
	var cfg envTagged
	LoadFromEnv(&cfg)
	if cfg.Interval != 10 {
		t.Fatalf("Interval = %d, want min-clamped 10", cfg.Interval)
	}
	if cfg.Enabled {
		t.Fatal("Enabled should be false")
	}
}

func TestLoadFromEnv_NilSafe(t *testing.T) {
	LoadFromEnv(nil)
	var p *envTagged
	LoadFromEnv(p)
}
