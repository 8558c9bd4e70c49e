package config

import "time"

// ReceptionistConfig holds the service configuration loaded from the environment
type ReceptionistConfig struct {
	Port string

	// PublicBaseURL is the externally reachable base URL used in TwiML
	// (audio playback links, webhook signature validation).
	PublicBaseURL string

	// Instance identifier for multi-pod monitoring
	InstanceID string

	// Reasoning engine
	EngineMode       string // "llm" or "rules"
	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	EmbeddingModel   string
	LLMRatePerSecond float64
	LLMBurst         int

	// Speech synthesis
	DeepgramAPIKey  string
	DeepgramBaseURL string
	DeepgramModel   string
	TTSEnabled      bool

	// Telephony
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool
	TwilioVoice             string

	// Live call registry
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Email vector search
	MongoURI         string
	MongoDatabase    string
	MongoCollection  string
	MongoVectorIndex string

	// Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	CalendarUserID     string
	CalendarTimezone   string

	// Archive and events. ArchiveDir is used when no bucket is set.
	ArchiveBucket   string
	ArchiveDir      string
	PubSubProjectID string
	PubSubTopic     string
	PubSubID        string

	// Business defaults used when no business config row exists
	CEOName            string
	CompanyName        string
	CompanyDescription string

	// Policy
	PolicyPath  string
	PolicyWatch bool

	// API protection for /api and /ws
	SecretKey string

	// Stale call sweeper
	SweeperSchedule string
	StaleCallAfter  time.Duration

	// Tracing
	OTLPEndpoint string
	OTLPInsecure bool
	Environment  string

	EnableCORS bool
}

// TTSActive reports whether synthesized audio should be used instead of <Say>
func (c *ReceptionistConfig) TTSActive() bool {
	return c.TTSEnabled && c.DeepgramAPIKey != "" && c.PublicBaseURL != ""
}
