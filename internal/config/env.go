package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

// Provider selects which calendar backend the bot talks to.
const (
	ProviderArcade = "arcade"
	ProviderGoogle = "google"
)

type Config struct {
	// Telegram bot credentials (required)
	TelegramAPIID    int
	TelegramAPIHash  string
	TelegramBotToken string

	// Extraction engine (required)
	AnthropicAPIKey   string
	ExtractionModels  []string
	ClaudeTemperature float64

	// Calendar backend
	CalendarProvider      string
	ArcadeAPIKey          string
	ArcadeBaseURL         string
	GoogleCredentialsFile string

	// Optional with defaults
	DefaultTimezone string
	StateFile       string
	SessionFile     string
	DBPath          string
	HTTPPort        int
	BaseURL         string
}

func LoadFromEnv() *Config {
	cfg := &Config{
		TelegramAPIID:    getEnvAsIntOrDefault("TELEGRAM_API_ID", 0),
		TelegramAPIHash:  os.Getenv("TELEGRAM_API_HASH"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		ExtractionModels:  getEnvAsListOrDefault("TGCAL_EXTRACTION_MODELS", defaultExtractionModels),
		ClaudeTemperature: getEnvAsFloatOrDefault("TGCAL_CLAUDE_TEMPERATURE", 0.1),

		CalendarProvider:      getEnvOrDefault("TGCAL_CALENDAR_PROVIDER", ProviderArcade),
		ArcadeAPIKey:          os.Getenv("ARCADE_API_KEY"),
		ArcadeBaseURL:         getEnvOrDefault("ARCADE_BASE_URL", "https://api.arcade.dev"),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_CREDENTIALS_FILE", "./credentials.json"),

		DefaultTimezone: getEnvOrDefault("TGCAL_DEFAULT_TIMEZONE", "UTC"),
		StateFile:       getEnvOrDefault("TGCAL_STATE_FILE", "./sessions.json"),
		SessionFile:     getEnvOrDefault("TGCAL_SESSION_FILE", "./telegram.session"),
		DBPath:          getEnvOrDefault("TGCAL_DB_PATH", "./tgcal.db"),
		HTTPPort:        getEnvAsIntOrDefault("TGCAL_HTTP_PORT", 8080),
		BaseURL:         getEnvOrDefault("TGCAL_BASE_URL", ""),
	}

	return cfg
}

// defaultExtractionModels is the fallback priority order used when
// TGCAL_EXTRACTION_MODELS is unset.
var defaultExtractionModels = []string{
	"claude-sonnet-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
