package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Policies  PoliciesConfig  `yaml:"policies"`
	Fines     FinesConfig     `yaml:"fines"`
	Billing   BillingConfig   `yaml:"billing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// JWTConfig contains the boundary token settings. The core never issues
// tokens; it only validates what the identity collaborator signed.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// KindPolicyConfig parameterizes one resource kind
type KindPolicyConfig struct {
	MaxConcurrent        int32 `yaml:"max_concurrent"`
	MaxRenewals          int32 `yaml:"max_renewals"`
	LoanPeriodDays       int32 `yaml:"loan_period_days"`
	RenewalExtensionDays int32 `yaml:"renewal_extension_days"`
}

// PoliciesConfig holds per-kind allocation rules
type PoliciesConfig struct {
	Room      KindPolicyConfig `yaml:"room"`
	BookTitle KindPolicyConfig `yaml:"book_title"`
	ExamSeat  KindPolicyConfig `yaml:"exam_seat"`
}

// FinesConfig holds per-kind overdue rates in paise per day
type FinesConfig struct {
	BookDailyRatePaise int64 `yaml:"book_daily_rate_paise"`
	RoomDailyRatePaise int64 `yaml:"room_daily_rate_paise"`
	ExamDailyRatePaise int64 `yaml:"exam_daily_rate_paise"`
}

// BillingConfig contains billing ledger settings
type BillingConfig struct {
	OverpaymentTolerancePaise int64 `yaml:"overpayment_tolerance_paise"`
	BillFines                 bool  `yaml:"bill_fines"`
}

// SchedulerConfig contains cron schedule settings (six-field specs, UTC)
type SchedulerConfig struct {
	ExpireOverdueAllocations string `yaml:"expire_overdue_allocations"`
	AssessUnbilledFines      string `yaml:"assess_unbilled_fines"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Policy defaults: one room per student per year, five concurrent
	// loans with two 14-day renewals, exams bounded by their window only.
	if c.Policies.Room.MaxConcurrent == 0 {
		c.Policies.Room.MaxConcurrent = 1
	}
	if c.Policies.BookTitle.MaxConcurrent == 0 {
		c.Policies.BookTitle.MaxConcurrent = 5
	}
	if c.Policies.BookTitle.MaxRenewals == 0 {
		c.Policies.BookTitle.MaxRenewals = 2
	}
	if c.Policies.BookTitle.LoanPeriodDays == 0 {
		c.Policies.BookTitle.LoanPeriodDays = 14
	}
	if c.Policies.BookTitle.RenewalExtensionDays == 0 {
		c.Policies.BookTitle.RenewalExtensionDays = 14
	}

	// Fine defaults: ₹5/day for overdue library books
	if c.Fines.BookDailyRatePaise == 0 {
		c.Fines.BookDailyRatePaise = 500
	}

	// Scheduler defaults
	if c.Scheduler.ExpireOverdueAllocations == "" {
		c.Scheduler.ExpireOverdueAllocations = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.AssessUnbilledFines == "" {
		c.Scheduler.AssessUnbilledFines = "0 30 2 * * *" // 2:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
