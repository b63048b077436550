package dirgate

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("key")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.TOTP.Digits != 6 || cfg.TOTP.Period != 30 || cfg.TOTP.Skew != 1 {
		t.Fatalf("unexpected TOTP defaults %+v", cfg.TOTP)
	}
	if cfg.Lockout.Threshold != 5 {
		t.Fatalf("unexpected lockout threshold %d", cfg.Lockout.Threshold)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.Token.SigningMethod = "hs256"
		cfg.Token.PrivateKey = []byte("key")
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero token ttl", func(c *Config) { c.Token.TTL = 0 }},
		{"huge leeway", func(c *Config) { c.Token.Leeway = 10 * time.Minute }},
		{"bad signing method", func(c *Config) { c.Token.SigningMethod = "rs256" }},
		{"odd digits", func(c *Config) { c.TOTP.Digits = 7 }},
		{"zero period", func(c *Config) { c.TOTP.Period = 0 }},
		{"excess skew", func(c *Config) { c.TOTP.Skew = 5 }},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"zero lockout duration", func(c *Config) { c.Lockout.Duration = 0 }},
		{"zero challenge ttl", func(c *Config) { c.Challenge.TTL = 0 }},
		{"zero challenge attempts", func(c *Config) { c.Challenge.MaxAttempts = 0 }},
		{"zero step-up window", func(c *Config) { c.StepUp.Window = 0 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("original")

	clone := cloneConfig(cfg)
	clone.Token.PrivateKey[0] = 'X'

	if cfg.Token.PrivateKey[0] == 'X' {
		t.Fatal("expected clone to hold independent key bytes")
	}
}
