package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string

	// Mitigation state store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Enforcement
	EnforcementTTL time.Duration
	DelayDuration  time.Duration

	// Telemetry batching
	QueueCapacity int
	BatchSize     int
	BatchInterval time.Duration
	PollInterval  time.Duration

	// LLM boundary (OpenAI-compatible chat completions endpoint)
	LLMBaseURL        string
	LLMAPIKey         string
	ClassifierModel   string
	SpecialistModel   string
	CalibrationModel  string
	CalibrationPolicy string // "effectiveness" or "llm"

	// History / similarity-search sidecar
	ChromaURL string

	// Challenge verification
	CaptchaSecret    string
	CaptchaVerifyURL string

	// Auth
	JWTSecret string

	// Ops alerting (comma-separated shoutrrr URLs)
	AlertURLs []string

	// Test-only source address override via the Mock-IP header.
	// Never enabled in production.
	AllowMockIP bool
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("VIGIL_ENV", "development"),
		HTTPPort:     getEnv("VIGIL_HTTP_PORT", "8080"),
		DatabasePath: getEnv("VIGIL_DB_PATH", filepath.Join("data", "vigil.db")),

		RedisAddr:     getEnv("VIGIL_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("VIGIL_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("VIGIL_REDIS_DB", 0),

		EnforcementTTL: getEnvDuration("VIGIL_ENFORCEMENT_TTL", time.Hour),
		DelayDuration:  getEnvDuration("VIGIL_DELAY_DURATION", 400*time.Millisecond),

		QueueCapacity: getEnvInt("VIGIL_QUEUE_CAPACITY", 1000),
		BatchSize:     getEnvInt("VIGIL_BATCH_SIZE", 100),
		BatchInterval: getEnvDuration("VIGIL_BATCH_INTERVAL", 2*time.Second),
		PollInterval:  getEnvDuration("VIGIL_POLL_INTERVAL", time.Second),

		LLMBaseURL:        getEnv("VIGIL_LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMAPIKey:         getEnv("VIGIL_LLM_API_KEY", ""),
		ClassifierModel:   getEnv("VIGIL_CLASSIFIER_MODEL", "llama-3.1-8b-instant"),
		SpecialistModel:   getEnv("VIGIL_SPECIALIST_MODEL", "llama-3.3-70b-versatile"),
		CalibrationModel:  getEnv("VIGIL_CALIBRATION_MODEL", "llama-3.1-8b-instant"),
		CalibrationPolicy: getEnv("VIGIL_CALIBRATION_POLICY", "effectiveness"),

		ChromaURL: getEnv("VIGIL_CHROMADB_URL", "http://localhost:9000"),

		CaptchaSecret:    getEnv("VIGIL_CAPTCHA_SECRET", ""),
		CaptchaVerifyURL: getEnv("VIGIL_CAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),

		JWTSecret: getEnv("VIGIL_JWT_SECRET", "change-me-in-production"),
	}

	if urls := getEnv("VIGIL_ALERT_URLS", ""); urls != "" {
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.AlertURLs = append(cfg.AlertURLs, u)
			}
		}
	}

	cfg.AllowMockIP = cfg.Environment != "production" || os.Getenv("VIGIL_ALLOW_MOCK_IP") == "1"

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}

	return fallback
}
