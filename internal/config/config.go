package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	Timezone string

	PendingTTL          time.Duration
	CandidateWindowDays int
	FreeSlotMin         time.Duration

	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIRateLimitRPM int
	WhisperModel       string

	GoogleAccessToken  string
	GoogleCalendarID   string
	GoogleTaskListID   string
	CalendarBaseURL    string
	TasksBaseURL       string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	ReplyMode        string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "donna"),
		AllowAnyOrigin:      false,
		Timezone:            envOrDefault("APP_TIMEZONE", "UTC"),
		OpenAIAPIKey:        stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:         envOrDefault("OPENAI_MODEL", ""),
		WhisperModel:        envOrDefault("OPENAI_WHISPER_MODEL", ""),
		GoogleAccessToken:   stringsTrimSpace("GOOGLE_ACCESS_TOKEN"),
		GoogleCalendarID:    envOrDefault("GOOGLE_CALENDAR_ID", "primary"),
		GoogleTaskListID:    envOrDefault("GOOGLE_TASKLIST_ID", "@default"),
		CalendarBaseURL:     stringsTrimSpace("GOOGLE_CALENDAR_BASE_URL"),
		TasksBaseURL:        stringsTrimSpace("GOOGLE_TASKS_BASE_URL"),
		TwilioAccountSID:    stringsTrimSpace("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     stringsTrimSpace("TWILIO_AUTH_TOKEN"),
		TwilioFrom:          stringsTrimSpace("TWILIO_FROM"),
		ReplyMode:           envOrDefault("APP_REPLY_MODE", "twiml"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		OpenAIRateLimitRPM:  30,
		PendingTTL:          10 * time.Minute,
		CandidateWindowDays: 14,
		FreeSlotMin:         2 * time.Hour,
		ShutdownTimeout:     15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PendingTTL, err = durationFromEnv("APP_PENDING_TTL", cfg.PendingTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.FreeSlotMin, err = durationFromEnv("APP_FREE_SLOT_MIN", cfg.FreeSlotMin)
	if err != nil {
		return Config{}, err
	}
	cfg.CandidateWindowDays, err = intFromEnv("APP_CANDIDATE_WINDOW_DAYS", cfg.CandidateWindowDays)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAIRateLimitRPM, err = intFromEnv("OPENAI_RATE_LIMIT_RPM", cfg.OpenAIRateLimitRPM)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.PendingTTL < time.Minute {
		return Config{}, fmt.Errorf("APP_PENDING_TTL must be at least 1m")
	}
	if cfg.CandidateWindowDays <= 0 {
		return Config{}, fmt.Errorf("APP_CANDIDATE_WINDOW_DAYS must be positive")
	}
	if cfg.FreeSlotMin <= 0 {
		return Config{}, fmt.Errorf("APP_FREE_SLOT_MIN must be positive")
	}
	if cfg.OpenAIRateLimitRPM < 0 {
		return Config{}, fmt.Errorf("OPENAI_RATE_LIMIT_RPM must be >= 0")
	}
	switch cfg.ReplyMode {
	case "twiml", "rest":
	default:
		return Config{}, fmt.Errorf("APP_REPLY_MODE must be twiml or rest")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("APP_TIMEZONE parse error: %w", err)
	}

	return cfg, nil
}

// Location resolves the configured timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
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
