package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryQueue bool
	WorkerCount    int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Buffering and scheduling
	BufferQueueURL      string
	BufferRunsTable     string
	BufferWindow        time.Duration
	BufferSweepSchedule string
	BufferSweepGrace    time.Duration
	LeadRecencySchedule string

	// Completion and embeddings
	BedrockModelID          string
	BedrockEmbeddingModelID string
	GeminiAPIKey            string
	GeminiModelID           string

	// Pipeline tuning
	KnowledgeTopK              int
	KnowledgeMinSimilarity     float64
	EmbeddingCacheTTL          time.Duration
	PromptCacheTTL             time.Duration
	ClassifierSwitchThreshold  float64
	ClassifierEscalationCutoff float64
	DuplicateWindow            time.Duration

	// Outbound WhatsApp channel
	WhatsAppAPIURL   string
	WhatsAppAPIKey   string
	WhatsAppInstance string

	AdminJWTSecret string

	// Handoff notifications
	HandoffNotifyEmail string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string

	ArchiveBucket string

	WebhookToken     string
	WebhookRateLimit float64
	WebhookBurst     int
}

// LoadDotEnv loads a local .env file when present. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BufferQueueURL:      getEnv("BUFFER_QUEUE_URL", ""),
		BufferRunsTable:     getEnv("BUFFER_RUNS_TABLE", "buffer_runs"),
		BufferWindow:        getEnvAsDuration("BUFFER_WINDOW", 60*time.Second),
		BufferSweepSchedule: getEnv("BUFFER_SWEEP_SCHEDULE", "@every 30s"),
		BufferSweepGrace:    getEnvAsDuration("BUFFER_SWEEP_GRACE", 2*time.Minute),
		LeadRecencySchedule: getEnv("LEAD_RECENCY_SCHEDULE", "@every 15m"),

		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:           getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		KnowledgeTopK:              getEnvAsInt("KNOWLEDGE_TOP_K", 4),
		KnowledgeMinSimilarity:     getEnvAsFloat("KNOWLEDGE_MIN_SIMILARITY", 0.7),
		EmbeddingCacheTTL:          getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		PromptCacheTTL:             getEnvAsDuration("PROMPT_CACHE_TTL", 5*time.Minute),
		ClassifierSwitchThreshold:  getEnvAsFloat("CLASSIFIER_SWITCH_THRESHOLD", 0.8),
		ClassifierEscalationCutoff: getEnvAsFloat("CLASSIFIER_ESCALATION_THRESHOLD", 0.5),
		DuplicateWindow:            getEnvAsDuration("DUPLICATE_WINDOW", 5*time.Minute),

		WhatsAppAPIURL:   strings.TrimRight(getEnv("WHATSAPP_API_URL", ""), "/"),
		WhatsAppAPIKey:   getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppInstance: getEnv("WHATSAPP_INSTANCE", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		HandoffNotifyEmail: getEnv("HANDOFF_NOTIFY_EMAIL", ""),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Atendimento"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		WebhookToken:     getEnv("WEBHOOK_TOKEN", ""),
		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 10),
		WebhookBurst:     getEnvAsInt("WEBHOOK_BURST", 40),
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
