package config

import (
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("VRF_SECRET_KEY", "00")
}

func TestParseDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.AppPort != "8080" || cfg.DefaultTTL != 15*time.Minute || cfg.HouseAccount != "house" || !cfg.AutoResolve {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"postgres without dsn", "LEDGER_BACKEND", "postgres", "DATABASE_URL"},
		{"unknown backend", "LEDGER_BACKEND", "sqlite", "LEDGER_BACKEND"},
		{"rake over 100%", "RAKE_BPS", "10001", "RAKE_BPS"},
		{"redis without public key", "REDIS_ADDR", "localhost:6379", "VRF_PUBLIC_KEY"},
		{"bad duration", "DEFAULT_TTL", "soon", "parse env"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBase(t)
			t.Setenv("DATABASE_URL", "")
			t.Setenv(tc.key, tc.val)
			_, err := Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v; want mention of %s", err, tc.want)
			}
		})
	}
}
