package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// Service auth (operator routes)
	JWTSecret string

	// OpenAI
	OpenAIAPIKey     string
	LLMModel         string
	LLMMaxTokens     int
	LLMTemperature   float64
	LLMTimeoutSec    int
	LLMMaxRetries    int
	LLMMaxConcurrent int
	LLMRequestsPerMin int

	// OAuth - Google (user mailboxes)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Browser automation worker
	BrowserWorkerURL       string
	BrowserWorkerSecret    string
	BrowserStartTimeoutSec int
	BrowserPollTimeoutSec  int

	// Worker pool
	WorkerID        string
	WorkerMin       int
	WorkerMax       int
	WorkerQueueSize int

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int

	// Monitor
	MonitorIntervalMin     int // monitor_tick cadence
	MonitorProbesPerHour   int // per-user probe cap
	ManualSearchWindowDays int // mailbox search window for manual applications

	// Scheduler
	SchedulerEnabled        bool
	VerificationSweepMin    int
	UsageResetTickMin       int
	JobExpiryTickHour       int
	JobExpiryAfterDays      int
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "applyflow"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Service auth
		JWTSecret: getEnv("SERVICE_JWT_SECRET", ""),

		// OpenAI
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:      getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature:    getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeoutSec:     getEnvInt("LLM_TIMEOUT_SEC", 60),
		LLMMaxRetries:     getEnvInt("LLM_MAX_RETRIES", 5),
		LLMMaxConcurrent:  getEnvInt("LLM_MAX_CONCURRENT", 8),
		LLMRequestsPerMin: getEnvInt("LLM_REQUESTS_PER_MIN", 60),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Browser automation worker
		BrowserWorkerURL:       getEnv("BROWSER_WORKER_URL", "http://localhost:8090"),
		BrowserWorkerSecret:    getEnv("BROWSER_WORKER_SECRET", ""),
		BrowserStartTimeoutSec: getEnvInt("BROWSER_START_TIMEOUT_SEC", 120),
		BrowserPollTimeoutSec:  getEnvInt("BROWSER_POLL_TIMEOUT_SEC", 10),

		// Worker pool
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerMin:       getEnvInt("WORKER_MIN", 2),
		WorkerMax:       getEnvInt("WORKER_MAX", 20),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 1000),

		// Consumer
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 50),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),

		// Monitor
		MonitorIntervalMin:     getEnvInt("MONITOR_INTERVAL_MIN", 10),
		MonitorProbesPerHour:   getEnvInt("MONITOR_PROBES_PER_HOUR", 30),
		ManualSearchWindowDays: getEnvInt("MANUAL_SEARCH_WINDOW_DAYS", 30),

		// Scheduler
		SchedulerEnabled:     getEnvBool("SCHEDULER_ENABLED", true),
		VerificationSweepMin: getEnvInt("VERIFICATION_SWEEP_MIN", 5),
		UsageResetTickMin:    getEnvInt("USAGE_RESET_TICK_MIN", 60),
		JobExpiryTickHour:    getEnvInt("JOB_EXPIRY_TICK_HOUR", 24),
		JobExpiryAfterDays:   getEnvInt("JOB_EXPIRY_AFTER_DAYS", 90),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// MonitorInterval returns the monitor_tick cadence as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalMin) * time.Minute
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
