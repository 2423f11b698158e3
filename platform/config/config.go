// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MailConfig provides settings for the SMTP message transport.
type MailConfig interface {
	GetMailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetMailFromName() string
	GetMailFromAddress() string
}

// AgentConfig provides settings for the automated negotiation agent.
type AgentConfig interface {
	GetGeminiAPIKey() string
	GetAgentModel() string
	GetAgentTimeout() time.Duration
	IsAgentEnabled() bool
}

// MonitorDefaults provides the built-in defaults for admin-tunable
// health-monitor thresholds. Runtime values live in the settings table.
type MonitorDefaults interface {
	GetDefaultStaleHours() int
	GetDefaultStalledHours() int
	GetDefaultRetentionDays() int
}

// WebhookConfig provides settings for the inbound message webhook.
type WebhookConfig interface {
	GetWebhookSecret() string
}

// RulesConfig provides the optional stage-transition table override.
type RulesConfig interface {
	GetRulesFile() string
}

// NotificationConfig provides settings for outbound links in messages.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	MailEnabled     bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	MailFromName    string
	MailFromAddress string

	GeminiAPIKey string
	AgentModel   string
	AgentTimeout time.Duration

	DefaultStaleHours    int
	DefaultStalledHours  int
	DefaultRetentionDays int

	WebhookSecret string
	RulesFile     string
	AppBaseURL    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetMailEnabled() bool      { return c.MailEnabled }
func (c *Config) GetSMTPHost() string       { return c.SMTPHost }
func (c *Config) GetSMTPPort() int          { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string   { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string   { return c.SMTPPassword }
func (c *Config) GetMailFromName() string   { return c.MailFromName }
func (c *Config) GetMailFromAddress() string { return c.MailFromAddress }

func (c *Config) GetGeminiAPIKey() string        { return c.GeminiAPIKey }
func (c *Config) GetAgentModel() string          { return c.AgentModel }
func (c *Config) GetAgentTimeout() time.Duration { return c.AgentTimeout }
func (c *Config) IsAgentEnabled() bool           { return c.GeminiAPIKey != "" }

func (c *Config) GetDefaultStaleHours() int    { return c.DefaultStaleHours }
func (c *Config) GetDefaultStalledHours() int  { return c.DefaultStalledHours }
func (c *Config) GetDefaultRetentionDays() int { return c.DefaultRetentionDays }

func (c *Config) GetWebhookSecret() string { return c.WebhookSecret }
func (c *Config) GetRulesFile() string     { return c.RulesFile }
func (c *Config) GetAppBaseURL() string    { return c.AppBaseURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	mailEnabled := strings.EqualFold(getEnv("MAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE_NAME", "default"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),

		MailEnabled:     mailEnabled && smtpHost != "",
		SMTPHost:        smtpHost,
		SMTPPort:        mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		MailFromName:    getEnv("MAIL_FROM_NAME", "Concierge"),
		MailFromAddress: getEnv("MAIL_FROM_ADDRESS", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		AgentModel:   getEnv("AGENT_MODEL", "gemini-2.0-flash"),
		AgentTimeout: mustDuration(getEnv("AGENT_TIMEOUT", "45s")),

		DefaultStaleHours:    mustInt(getEnv("DEFAULT_STALE_HOURS", "24")),
		DefaultStalledHours:  mustInt(getEnv("DEFAULT_STALLED_HOURS", "72")),
		DefaultRetentionDays: mustInt(getEnv("DEFAULT_RETENTION_DAYS", "90")),

		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		RulesFile:     getEnv("TRANSITION_RULES_FILE", ""),
		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:4200"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.MailEnabled && cfg.MailFromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required when mail is enabled")
	}
	if cfg.DefaultStalledHours <= cfg.DefaultStaleHours {
		return nil, fmt.Errorf("DEFAULT_STALLED_HOURS must be greater than DEFAULT_STALE_HOURS")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
