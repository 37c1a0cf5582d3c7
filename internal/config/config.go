package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	WhatsAppToken       string
	WhatsAppPhoneID     string
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string
	WhatsAppAPIBase     string
	WhatsAppSendRate    float64
	WhatsAppSendBurst   int

	// Storage backends
	LedgerBackend   string
	SheetID         string
	CalendarBackend string
	CalendarID      string
	// GoogleCredentials holds service-account JSON inline;
	// GoogleCredentialsFile points at it on disk.
	GoogleCredentials     string
	GoogleCredentialsFile string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisTLS              bool
	FunnelStore           string
	FunnelTTL             time.Duration
	DedupStore            string
	DedupTTL              time.Duration

	// Clinic and booking
	ClinicTimezone      string
	DefaultLanguage     string
	SlotConflictWindow  time.Duration
	ConfirmationDelay   time.Duration
	MessageTimeout      time.Duration
	UpgradePerWave      int
	UpgradeWaveDelay    time.Duration
	UpgradeLookahead    int
	UpgradeRandomize    bool
	NudgeFirstAfter     time.Duration
	NudgeSecondAfter    time.Duration
	NudgeMaxAge         time.Duration
	SweepInterval       time.Duration
	CompleteInterval    time.Duration
	JobLocksEnabled     bool
	AgentPhones         []string
	AdvisorInboxEmail   string
	WebhookRateLimit    float64
	WebhookRateBurst    int
	AdminJWTSecret      string
	AdminJWTIssuer      string
	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string
	SESFromName         string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WhatsAppToken:       getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIBase:     getEnv("WHATSAPP_API_BASE", ""),
		WhatsAppSendRate:    getEnvAsFloat("WHATSAPP_SEND_RATE", 20),
		WhatsAppSendBurst:   getEnvAsInt("WHATSAPP_SEND_BURST", 10),

		LedgerBackend:         lower(getEnv("LEDGER_BACKEND", "sheets")),
		SheetID:               getEnv("SHEET_ID", ""),
		CalendarBackend:       lower(getEnv("CALENDAR_BACKEND", "google")),
		CalendarID:            getEnv("CALENDAR_ID", ""),
		GoogleCredentials:     getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisTLS:              getEnvAsBool("REDIS_TLS", false),
		FunnelStore:           lower(getEnv("FUNNEL_STORE", "memory")),
		FunnelTTL:             getEnvAsDuration("FUNNEL_TTL", 24*time.Hour),
		DedupStore:            lower(getEnv("DEDUP_STORE", "memory")),
		DedupTTL:              getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "America/Tijuana"),
		DefaultLanguage:    lower(getEnv("DEFAULT_LANGUAGE", "es")),
		SlotConflictWindow: getEnvAsDuration("SLOT_CONFLICT_WINDOW", 30*time.Minute),
		ConfirmationDelay:  getEnvAsDuration("CONFIRMATION_DELAY", 900*time.Millisecond),
		MessageTimeout:     getEnvAsDuration("MESSAGE_TIMEOUT", 2*time.Minute),
		UpgradePerWave:     getEnvAsInt("UPGRADE_PER_WAVE", 3),
		UpgradeWaveDelay:   getEnvAsDuration("UPGRADE_WAVE_DELAY", 8*time.Minute),
		UpgradeLookahead:   getEnvAsInt("UPGRADE_LOOKAHEAD_DAYS", 2),
		UpgradeRandomize:   getEnvAsBool("UPGRADE_RANDOMIZE", true),
		NudgeFirstAfter:    getEnvAsDuration("NUDGE_FIRST_AFTER", 8*time.Minute),
		NudgeSecondAfter:   getEnvAsDuration("NUDGE_SECOND_AFTER", 25*time.Minute),
		NudgeMaxAge:        getEnvAsDuration("NUDGE_MAX_AGE", 90*time.Minute),
		SweepInterval:      getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
		CompleteInterval:   getEnvAsDuration("COMPLETE_INTERVAL", 10*time.Minute),
		JobLocksEnabled:    getEnvAsBool("JOB_LOCKS_ENABLED", false),
		AgentPhones:        getEnvAsList("AGENT_PHONES"),
		AdvisorInboxEmail:  getEnv("ADVISOR_INBOX_EMAIL", ""),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 40),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTIssuer:     getEnv("ADMIN_JWT_ISSUER", ""),

		// Advisor lead email
		EmailProvider:     lower(getEnv("EMAIL_PROVIDER", "auto")),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Consultorio Dental"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Consultorio Dental"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
