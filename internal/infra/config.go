package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	VisionBackend      string
	OllamaBaseURL      string
	LMStudioBaseURL    string
	VisionModel        string
	VisionTimeout      time.Duration
	VisionMaxRetries   int
	VisionMaxTokens    int
	CaptionWorkers     int
	CaptionRetryBackoff time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		VisionBackend:       getEnv("VISION_BACKEND", "ollama"),
		OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LMStudioBaseURL:     getEnv("LMSTUDIO_BASE_URL", "http://localhost:1234"),
		VisionModel:         getEnv("VISION_MODEL", "qwen2.5-vl:7b"),
		VisionTimeout:       time.Second * time.Duration(getEnvInt("VISION_TIMEOUT_SECONDS", 120)),
		VisionMaxRetries:    getEnvInt("VISION_MAX_RETRIES", 3),
		VisionMaxTokens:     getEnvInt("VISION_MAX_TOKENS", 1024),
		CaptionWorkers:      getEnvInt("CAPTION_WORKERS", 2),
		CaptionRetryBackoff: time.Millisecond * time.Duration(getEnvInt("CAPTION_RETRY_BACKOFF_MS", 2000)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.VisionBackend != "ollama" && cfg.VisionBackend != "lmstudio" {
		return nil, fmt.Errorf("VISION_BACKEND must be ollama or lmstudio, got %q", cfg.VisionBackend)
	}

	if cfg.CaptionWorkers < 1 {
		cfg.CaptionWorkers = 1
	}
	if cfg.VisionMaxRetries < 1 {
		cfg.VisionMaxRetries = 1
	}

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
