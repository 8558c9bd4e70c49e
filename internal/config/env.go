package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort             = "8080"
	DefaultLLMBaseURL       = "https://api.fireworks.ai/inference/v1"
	DefaultLLMModel         = "accounts/fireworks/models/minimax-m2p1"
	DefaultEmbeddingModel   = "nomic-ai/nomic-embed-text-v1.5"
	DefaultSweeperSchedule  = "@every 2m"
	DefaultStaleCallAfter   = 30 * time.Minute
	DefaultCalendarTimezone = "America/New_York"

	EngineModeLLM   = "llm"
	EngineModeRules = "rules"
)

// LoadReceptionistConfig loads the service configuration from environment variables
func LoadReceptionistConfig() *ReceptionistConfig {
	config := &ReceptionistConfig{
		Port:          getEnv("PORT", DefaultPort),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		InstanceID:    getEnv("INSTANCE_ID", getEnv("HOSTNAME", "")),

		EngineMode:       strings.ToLower(getEnv("ENGINE_MODE", EngineModeLLM)),
		LLMAPIKey:        getEnv("LLM_API_KEY", getEnv("FIREWORKS_API_KEY", "")),
		LLMBaseURL:       getEnv("LLM_BASE_URL", DefaultLLMBaseURL),
		LLMModel:         getEnv("LLM_MODEL", DefaultLLMModel),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		LLMRatePerSecond: getEnvAsFloat("LLM_RATE_PER_SECOND", 5),
		LLMBurst:         getEnvAsInt("LLM_BURST", 10),

		DeepgramAPIKey:  getEnv("DEEPGRAM_API_KEY", ""),
		DeepgramBaseURL: getEnv("DEEPGRAM_SPEAK_URL", ""),
		DeepgramModel:   getEnv("DEEPGRAM_MODEL", ""),
		TTSEnabled:      getEnvAsBool("TTS_ENABLED", true),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", false),
		TwilioVoice:             getEnv("TWILIO_VOICE", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		MongoURI:         getEnv("MONGODB_URI", ""),
		MongoDatabase:    getEnv("MONGODB_DATABASE", "receptionist"),
		MongoCollection:  getEnv("MONGODB_EMAIL_COLLECTION", "emails"),
		MongoVectorIndex: getEnv("MONGODB_VECTOR_INDEX", "email_vector_index"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URI", ""),
		CalendarUserID:     getEnv("CALENDAR_USER_ID", "default"),
		CalendarTimezone:   getEnv("CALENDAR_TIMEZONE", DefaultCalendarTimezone),

		ArchiveBucket:   getEnv("GCS_ARCHIVE_BUCKET", ""),
		ArchiveDir:      getEnv("ARCHIVE_DIR", ""),
		PubSubProjectID: getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:     getEnv("PUBSUB_TOPIC", "receptionist-call-outcomes"),
		PubSubID:        getEnv("PUBSUB_ID", "astra-receptionist"),

		CEOName:            getEnv("CEO_NAME", ""),
		CompanyName:        getEnv("COMPANY_NAME", ""),
		CompanyDescription: getEnv("COMPANY_DESCRIPTION", ""),

		PolicyPath:  getEnv("POLICY_PATH", ""),
		PolicyWatch: getEnvAsBool("POLICY_WATCH", true),

		SecretKey: getEnv("SECRET_KEY", ""),

		SweeperSchedule: getEnv("SWEEPER_SCHEDULE", DefaultSweeperSchedule),
		StaleCallAfter:  getEnvAsDuration("STALE_CALL_AFTER", DefaultStaleCallAfter),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		Environment:  getEnv("ENVIRONMENT", "development"),

		EnableCORS: getEnvAsBool("ENABLE_CORS", true),
	}

	if config.EngineMode != EngineModeRules && config.LLMAPIKey == "" {
		config.EngineMode = EngineModeRules
	}

	return config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
