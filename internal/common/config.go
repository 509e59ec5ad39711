package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Image   ImageConfig
	Billing BillingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string
	AllowOrigins []string
}

// LLMConfig holds inference provider configuration
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Models      []string
	Temperature float32
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// ImageConfig holds preprocessor tunables. MaxEdge trades request cost
// against digit legibility; 800-1536 are the sensible bounds.
type ImageConfig struct {
	MaxEdge      int
	JPEGQuality  int
	ThumbEdge    int
	ThumbQuality int
}

// BillingConfig holds invoice pricing defaults
type BillingConfig struct {
	UnitPrice float64
	VATRate   float64
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is honored when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			AllowOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Models:      getEnvAsList("OPENAI_MODELS", []string{"gpt-4o-mini", "gpt-4o"}),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			MaxAttempts: getEnvAsInt("OPENAI_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("OPENAI_RETRY_BASE_DELAY", 2*time.Second),
		},
		Image: ImageConfig{
			MaxEdge:      getEnvAsInt("IMAGE_MAX_EDGE", 1024),
			JPEGQuality:  getEnvAsInt("IMAGE_JPEG_QUALITY", 70),
			ThumbEdge:    getEnvAsInt("THUMBNAIL_MAX_EDGE", 120),
			ThumbQuality: getEnvAsInt("THUMBNAIL_JPEG_QUALITY", 40),
		},
		Billing: BillingConfig{
			UnitPrice: getEnvAsFloat64("UNIT_PRICE", 150),
			VATRate:   getEnvAsFloat64("VAT_RATE", 0.10),
		},
	}
}

// Validate validates the loaded configuration. A missing API key is not
// fatal here: the server still serves tenant and invoice routes, and the
// extraction client reports MISSING_CREDENTIAL per call.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if len(c.LLM.Models) == 0 {
		return NewAppError("CONFIG_ERROR", "OPENAI_MODELS must list at least one model", ErrInvalidInput)
	}
	if c.Image.MaxEdge < 64 {
		return NewAppError("CONFIG_ERROR", "IMAGE_MAX_EDGE too small", ErrInvalidInput)
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

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
