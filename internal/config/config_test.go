package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hisris")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.MLLPAddr != "0.0.0.0:2575" {
		t.Errorf("MLLPAddr = %q, want 0.0.0.0:2575", cfg.MLLPAddr)
	}
	if cfg.HL7QueueSize != 256 {
		t.Errorf("HL7QueueSize = %d, want 256", cfg.HL7QueueSize)
	}
	if cfg.WorklistRetentionDays != 7 {
		t.Errorf("WorklistRetentionDays = %d, want 7", cfg.WorklistRetentionDays)
	}
	if !cfg.IsDev() {
		t.Error("expected development env by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is unset")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hisris")
	t.Setenv("MLLP_ADDR", "127.0.0.1:9999")
	t.Setenv("HL7_MAX_RETRIES", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MLLPAddr != "127.0.0.1:9999" {
		t.Errorf("MLLPAddr = %q, want 127.0.0.1:9999", cfg.MLLPAddr)
	}
	if cfg.HL7MaxRetries != 5 {
		t.Errorf("HL7MaxRetries = %d, want 5", cfg.HL7MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			MLLPAddr:              "0.0.0.0:2575",
			SendingFacility:       "HIS_RIS",
			HL7QueueSize:          256,
			HL7Consumers:          4,
			HL7MaxRetries:         3,
			HL7RetryBatch:         10,
			WorklistDir:           "/tmp/worklists",
			WorklistRetentionDays: 7,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty mllp addr", func(c *Config) { c.MLLPAddr = "" }},
		{"empty sending facility", func(c *Config) { c.SendingFacility = "" }},
		{"zero queue size", func(c *Config) { c.HL7QueueSize = 0 }},
		{"zero consumers", func(c *Config) { c.HL7Consumers = 0 }},
		{"negative retries", func(c *Config) { c.HL7MaxRetries = -1 }},
		{"zero retry batch", func(c *Config) { c.HL7RetryBatch = 0 }},
		{"empty worklist dir", func(c *Config) { c.WorklistDir = "" }},
		{"zero retention", func(c *Config) { c.WorklistRetentionDays = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
