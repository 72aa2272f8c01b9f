package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by LLM_BACKEND.
const (
	BackendOllama = "ollama"
	BackendGemini = "gemini"
	BackendMock   = "mock"
)

// Config contains all runtime settings for the chat relay.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowedOrigins []string

	LogLevel  string
	LogPretty bool

	MaxHistory    int
	MaxFrameBytes int
	Backend       string
	OllamaURL     string
	OllamaModel   string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         ":" + envOrDefault("PORT", "3000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "chatrelay"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		Backend:          strings.ToLower(envOrDefault("LLM_BACKEND", BackendOllama)),
		OllamaURL:        envOrDefault("OLLAMA_URL", "http://localhost:11434/api/chat"),
		OllamaModel:      envOrDefault("OLLAMA_MODEL", "llama3"),
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:      envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:    envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		AllowedOrigins:   splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		MaxHistory:       10,
		MaxFrameBytes:    4 << 20,
		ShutdownTimeout:  15 * time.Second,
	}
	if addr := stringsTrimSpace("APP_BIND_ADDR"); addr != "" {
		cfg.BindAddr = addr
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxHistory, err = intFromEnv("MAX_HISTORY", cfg.MaxHistory)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxFrameBytes, err = intFromEnv("STREAM_MAX_FRAME_BYTES", cfg.MaxFrameBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.LogPretty, err = boolFromEnv("LOG_PRETTY", cfg.LogPretty)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxHistory < 1 {
		return Config{}, fmt.Errorf("MAX_HISTORY must be at least 1")
	}
	if cfg.MaxFrameBytes < 1024 {
		return Config{}, fmt.Errorf("STREAM_MAX_FRAME_BYTES must be at least 1024")
	}
	switch cfg.Backend {
	case BackendOllama, BackendGemini, BackendMock:
	default:
		return Config{}, fmt.Errorf("invalid LLM_BACKEND: %q (expected ollama|gemini|mock)", cfg.Backend)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
