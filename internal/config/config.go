// Package config loads service settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	DefaultSanctionsList = []string{"SANCTIONED PERSON ONE", "SANCTIONED COMPANY TWO", "BANNED INDIVIDUAL THREE"}
	DefaultPEPList       = []string{"POLITICAL FIGURE ONE", "GOVERNMENT OFFICIAL TWO", "PUBLIC SERVANT THREE"}
)

type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	BureauBaseURL    string        `mapstructure:"BUREAU_BASE_URL"`
	BureauAPIKey     string        `mapstructure:"BUREAU_API_KEY"`
	BureauTimeout    time.Duration `mapstructure:"BUREAU_TIMEOUT"`
	BureauRPS        float64       `mapstructure:"BUREAU_RPS"`
	BureauBurst      int           `mapstructure:"BUREAU_BURST"`
	BureauSimLatency time.Duration `mapstructure:"BUREAU_SIMULATED_LATENCY"`

	DispatcherCoreWorkers   int           `mapstructure:"DISPATCHER_CORE_WORKERS"`
	DispatcherMaxWorkers    int           `mapstructure:"DISPATCHER_MAX_WORKERS"`
	DispatcherQueueCapacity int           `mapstructure:"DISPATCHER_QUEUE_CAPACITY"`
	DispatcherKeepAlive     time.Duration `mapstructure:"DISPATCHER_KEEP_ALIVE"`
	DispatcherShutdownGrace time.Duration `mapstructure:"DISPATCHER_SHUTDOWN_GRACE"`

	AMLPassRate       float64       `mapstructure:"AML_PASS_RATE"`
	ComplianceLatency time.Duration `mapstructure:"COMPLIANCE_SIMULATED_LATENCY"`
	SanctionsList     []string      `mapstructure:"SANCTIONS_LIST"`
	PEPList           []string      `mapstructure:"PEP_LIST"`

	PendingMonitorSchedule string        `mapstructure:"PENDING_MONITOR_SCHEDULE"`
	StalePendingAfter      time.Duration `mapstructure:"STALE_PENDING_AFTER"`

	TaxIDSecret string `mapstructure:"TAX_ID_SECRET"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"HTTP_ADDR", "METRICS_ADDR", "DATABASE_URL", "REDIS_ADDR", "RABBITMQ_URL",
	"BUREAU_BASE_URL", "BUREAU_API_KEY", "BUREAU_TIMEOUT", "BUREAU_RPS", "BUREAU_BURST", "BUREAU_SIMULATED_LATENCY",
	"DISPATCHER_CORE_WORKERS", "DISPATCHER_MAX_WORKERS", "DISPATCHER_QUEUE_CAPACITY",
	"DISPATCHER_KEEP_ALIVE", "DISPATCHER_SHUTDOWN_GRACE",
	"AML_PASS_RATE", "COMPLIANCE_SIMULATED_LATENCY", "SANCTIONS_LIST", "PEP_LIST",
	"PENDING_MONITOR_SCHEDULE", "STALE_PENDING_AFTER",
	"TAX_ID_SECRET", "LOG_LEVEL", "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("BUREAU_TIMEOUT", 10*time.Second)
	v.SetDefault("BUREAU_RPS", 20.0)
	v.SetDefault("BUREAU_BURST", 5)
	v.SetDefault("BUREAU_SIMULATED_LATENCY", 0)
	v.SetDefault("DISPATCHER_CORE_WORKERS", 5)
	v.SetDefault("DISPATCHER_MAX_WORKERS", 10)
	v.SetDefault("DISPATCHER_QUEUE_CAPACITY", 100)
	v.SetDefault("DISPATCHER_KEEP_ALIVE", 60*time.Second)
	v.SetDefault("DISPATCHER_SHUTDOWN_GRACE", 60*time.Second)
	v.SetDefault("AML_PASS_RATE", 0.95)
	v.SetDefault("COMPLIANCE_SIMULATED_LATENCY", 0)
	v.SetDefault("SANCTIONS_LIST", DefaultSanctionsList)
	v.SetDefault("PEP_LIST", DefaultPEPList)
	v.SetDefault("PENDING_MONITOR_SCHEDULE", "@every 1m")
	v.SetDefault("STALE_PENDING_AFTER", 5*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// LoadConfig reads <dir>/.env when present and lets environment variables
// override it.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("Error reading config file", slog.String("error", err.Error()))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SanctionsList = splitList(cfg.SanctionsList)
	cfg.PEPList = splitList(cfg.PEPList)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DispatcherCoreWorkers < 1 {
		errs = append(errs, fmt.Errorf("DISPATCHER_CORE_WORKERS must be at least 1"))
	}
	if c.DispatcherMaxWorkers < c.DispatcherCoreWorkers {
		errs = append(errs, fmt.Errorf("DISPATCHER_MAX_WORKERS (%d) must be >= DISPATCHER_CORE_WORKERS (%d)", c.DispatcherMaxWorkers, c.DispatcherCoreWorkers))
	}
	if c.DispatcherQueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("DISPATCHER_QUEUE_CAPACITY must not be negative"))
	}
	if c.DispatcherShutdownGrace <= 0 || c.DispatcherKeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("dispatcher durations must be positive"))
	}
	if c.AMLPassRate < 0 || c.AMLPassRate > 1 {
		errs = append(errs, fmt.Errorf("AML_PASS_RATE must be within [0, 1], got %v", c.AMLPassRate))
	}
	if c.BureauTimeout <= 0 {
		errs = append(errs, fmt.Errorf("BUREAU_TIMEOUT must be positive"))
	}
	if c.StalePendingAfter <= 0 {
		errs = append(errs, fmt.Errorf("STALE_PENDING_AFTER must be positive"))
	}
	return errors.Join(errs...)
}

// splitList accepts either proper slices or a single comma separated value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
