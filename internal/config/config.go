package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Harshitk-cp/synapse/internal/service"
	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SYNAPSE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SYNAPSE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey is the static bearer key for /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock, none
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock", "none":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// AutoMigrate applies embedded schema migrations at startup.
// Defaults to true; only an explicit false disables it.
func AutoMigrate() bool {
	v, err := strconv.ParseBool(os.Getenv("AUTO_MIGRATE"))
	if err != nil {
		return true
	}
	return v
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return positiveFloat("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return positiveInt("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func MaxReasoningDepth() int {
	return positiveInt("MAX_REASONING_DEPTH", service.DefaultMaxReasoningDepth)
}

func ExplorationThreshold() float64 {
	return unitFloat("EXPLORATION_THRESHOLD", service.DefaultExplorationThreshold)
}

func FusionThreshold() float64 {
	return unitFloat("FUSION_THRESHOLD", service.DefaultFusionThreshold)
}

// ConsolidationInterval accepts Go durations ("6h", "90s").
func ConsolidationInterval() time.Duration {
	return positiveDuration("CONSOLIDATION_INTERVAL", service.DefaultConsolidationInterval)
}

func MaxActiveTrajectories() int {
	return positiveInt("MAX_ACTIVE_TRAJECTORIES", service.DefaultMaxActiveTrajectories)
}

func MaxRetrievedNodes() int {
	return positiveInt("MAX_RETRIEVED_NODES", service.DefaultMaxRetrievedNodes)
}

func ProbeDepth() int {
	return positiveInt("PROBE_DEPTH", service.DefaultProbeDepth)
}

// ExplorationEnabled defaults to true; only an explicit false disables it.
func ExplorationEnabled() bool {
	v, err := strconv.ParseBool(os.Getenv("EXPLORATION_ENABLED"))
	if err != nil {
		return true
	}
	return v
}

// QueryTimeout bounds a single /v1/query request.
// Defaults to 60s if not set.
func QueryTimeout() time.Duration {
	return positiveDuration("QUERY_TIMEOUT", 60*time.Second)
}

// MemoryCapacity is the node count at which the load factor reaches 1.
func MemoryCapacity() int {
	return positiveInt("MEMORY_CAPACITY", 10000)
}

// OracleBreakerFailureRatio is the failure ratio that opens the oracle breaker.
func OracleBreakerFailureRatio() float64 {
	return unitFloat("ORACLE_BREAKER_FAILURE_RATIO", 0.6)
}

// Cognition assembles the control loop configuration.
func Cognition() service.Config {
	cfg := service.DefaultConfig()
	cfg.MaxReasoningDepth = MaxReasoningDepth()
	cfg.ExplorationThreshold = ExplorationThreshold()
	cfg.FusionThreshold = FusionThreshold()
	cfg.ConsolidationInterval = ConsolidationInterval()
	cfg.MaxActiveTrajectories = MaxActiveTrajectories()
	cfg.MaxRetrievedNodes = MaxRetrievedNodes()
	cfg.ProbeDepth = ProbeDepth()
	cfg.ExplorationEnabled = ExplorationEnabled()
	return cfg
}

func positiveInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func positiveFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func unitFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

func positiveDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
