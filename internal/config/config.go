package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Debug bool

	// Source site
	BaseURL string

	// Workplace layout
	WorkplaceDir  string
	DiscussionDir string
	EntriesDir    string
	VideosDir     string
	SpeechDir     string
	RangesFile    string

	// Fetcher retry behavior
	FetchRetryDelay time.Duration
	// FetchMaxRetries caps retries on rate-limit or transport failure.
	// 0 means retry forever, matching the source site's batch usage.
	FetchMaxRetries int
	FetchTimeout    time.Duration

	// Storage backend: "local" or "azure"
	StorageBackend   string
	StorageAccount   string
	StorageContainer string

	// Speech synthesis
	SpeechEndpoint string
	SpeechAPIKey   string
	SpeechRegion   string
	MaleVoice      string
	FemaleVoice    string

	// Notification configuration
	NotificationEmail string
	WebhookURL        string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Watch mode
	Port          string
	WatchSchedule string
	WatchBlock    int
	WatchStartID  int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	workplace := getEnv("WORKPLACE_DIR", "workplace")

	cfg := &Config{
		Debug: getBoolEnv("DEBUG", false),

		BaseURL: getEnv("DISCUSSIONS_BASE_URL", "https://wykop.pl/wpis"),

		WorkplaceDir:  workplace,
		DiscussionDir: filepath.Join(workplace, "discussions"),
		EntriesDir:    filepath.Join(workplace, "entries"),
		VideosDir:     filepath.Join(workplace, "videos"),
		SpeechDir:     filepath.Join(workplace, "speech"),
		RangesFile:    filepath.Join(workplace, "ranges.txt"),

		FetchRetryDelay: getDurationEnv("FETCH_RETRY_DELAY", 3*time.Second),
		FetchMaxRetries: getIntEnv("FETCH_MAX_RETRIES", 0),
		FetchTimeout:    getDurationEnv("FETCH_TIMEOUT", 30*time.Second),

		StorageBackend:   getEnv("STORAGE_BACKEND", "local"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "discussions"),

		SpeechEndpoint: getEnv("SPEECH_ENDPOINT", ""),
		SpeechAPIKey:   getEnv("SPEECH_API_KEY", ""),
		SpeechRegion:   getEnv("SPEECH_REGION", "westeurope"),
		MaleVoice:      getEnv("SPEECH_MALE_VOICE", "pl-PL-MarekNeural"),
		FemaleVoice:    getEnv("SPEECH_FEMALE_VOICE", "pl-PL-ZofiaNeural"),

		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		Port:          getEnv("PORT", "8080"),
		WatchSchedule: getEnv("WATCH_SCHEDULE", "0 0 */4 * * *"),
		WatchBlock:    getIntEnv("WATCH_BLOCK_SIZE", 100),
		WatchStartID:  getIntEnv("WATCH_START_ID", 1),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.StorageBackend != "local" && c.StorageBackend != "azure" {
		return fmt.Errorf("STORAGE_BACKEND must be 'local' or 'azure'")
	}

	if c.StorageBackend == "azure" && c.StorageAccount == "" {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORAGE_BACKEND is 'azure'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.FetchRetryDelay <= 0 {
		return fmt.Errorf("FETCH_RETRY_DELAY must be positive")
	}

	if c.WatchBlock <= 0 {
		return fmt.Errorf("WATCH_BLOCK_SIZE must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
