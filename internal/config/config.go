package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// HL7 / MLLP
	MLLPAddr          string `mapstructure:"MLLP_ADDR"`
	SendingFacility   string `mapstructure:"HL7_SENDING_FACILITY"`
	ReceivingFacility string `mapstructure:"HL7_RECEIVING_FACILITY"`
	HL7QueueSize      int    `mapstructure:"HL7_QUEUE_SIZE"`
	HL7Consumers      int    `mapstructure:"HL7_CONSUMERS"`
	HL7MaxRetries     int    `mapstructure:"HL7_MAX_RETRIES"`
	HL7RetryBatch     int    `mapstructure:"HL7_RETRY_BATCH"`

	// DICOM worklist
	WorklistDir           string `mapstructure:"WORKLIST_DIR"`
	InstitutionName       string `mapstructure:"INSTITUTION_NAME"`
	InstitutionAETitle    string `mapstructure:"INSTITUTION_AE_TITLE"`
	WorklistRetentionDays int    `mapstructure:"WORKLIST_RETENTION_DAYS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MLLP_ADDR", "0.0.0.0:2575")
	v.SetDefault("HL7_SENDING_FACILITY", "HIS_RIS")
	v.SetDefault("HL7_RECEIVING_FACILITY", "PACS")
	v.SetDefault("HL7_QUEUE_SIZE", 256)
	v.SetDefault("HL7_CONSUMERS", 4)
	v.SetDefault("HL7_MAX_RETRIES", 3)
	v.SetDefault("HL7_RETRY_BATCH", 10)
	v.SetDefault("WORKLIST_DIR", "/var/lib/orthanc/worklists")
	v.SetDefault("INSTITUTION_NAME", "Hospital General")
	v.SetDefault("INSTITUTION_AE_TITLE", "HIS_RIS_SCP")
	v.SetDefault("WORKLIST_RETENTION_DAYS", 7)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MLLP_ADDR")
	v.BindEnv("HL7_SENDING_FACILITY")
	v.BindEnv("HL7_RECEIVING_FACILITY")
	v.BindEnv("HL7_QUEUE_SIZE")
	v.BindEnv("HL7_CONSUMERS")
	v.BindEnv("HL7_MAX_RETRIES")
	v.BindEnv("HL7_RETRY_BATCH")
	v.BindEnv("WORKLIST_DIR")
	v.BindEnv("INSTITUTION_NAME")
	v.BindEnv("INSTITUTION_AE_TITLE")
	v.BindEnv("WORKLIST_RETENTION_DAYS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration can actually run the engine.
func (c *Config) Validate() error {
	if c.MLLPAddr == "" {
		return fmt.Errorf("MLLP_ADDR is required")
	}
	if c.SendingFacility == "" {
		return fmt.Errorf("HL7_SENDING_FACILITY is required")
	}
	if c.HL7QueueSize < 1 {
		return fmt.Errorf("HL7_QUEUE_SIZE must be at least 1, got %d", c.HL7QueueSize)
	}
	if c.HL7Consumers < 1 {
		return fmt.Errorf("HL7_CONSUMERS must be at least 1, got %d", c.HL7Consumers)
	}
	if c.HL7MaxRetries < 0 {
		return fmt.Errorf("HL7_MAX_RETRIES must not be negative, got %d", c.HL7MaxRetries)
	}
	if c.HL7RetryBatch < 1 {
		return fmt.Errorf("HL7_RETRY_BATCH must be at least 1, got %d", c.HL7RetryBatch)
	}
	if c.WorklistDir == "" {
		return fmt.Errorf("WORKLIST_DIR is required")
	}
	if c.WorklistRetentionDays < 1 {
		return fmt.Errorf("WORKLIST_RETENTION_DAYS must be at least 1, got %d", c.WorklistRetentionDays)
	}
	return nil
}
