package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 10 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMGlossaryPath string `yaml:"llm_glossary_path"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`

	MantisBaseURL   string `yaml:"mantis_base_url"`
	MantisAPIToken  string `yaml:"mantis_api_token"`
	MantisProjectID int    `yaml:"mantis_project_id"`
	MantisCategory  string `yaml:"mantis_category"`

	DBPath                     string `yaml:"db_path"`
	RedisAddr                  string `yaml:"redis_addr"`
	RedisPassword              string `yaml:"redis_password"`
	RedisDB                    int    `yaml:"redis_db"`
	StatusRefreshTTLSeconds    int    `yaml:"status_refresh_ttl_seconds"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	ConfirmationWindowSeconds    int    `yaml:"confirmation_window_seconds"`
	DedupWindowHours             int    `yaml:"dedup_window_hours"`
	ClassifierRetryBackoffMillis int    `yaml:"classifier_retry_backoff_ms"`
	TroubleshootRetentionMinutes int    `yaml:"troubleshoot_retention_minutes"`
	StatusSyncSchedule           string `yaml:"status_sync_schedule"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// LoadConfig reads .env, then CONFIG_PATH (default config.yaml), then
// environment overrides, and finally applies defaults and validation.
func LoadConfig() (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMGlossaryPath, "LLM_GLOSSARY_PATH")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.MantisBaseURL, "MANTIS_BASE_URL")
	envOverride(&cfg.MantisAPIToken, "MANTIS_API_TOKEN")
	envOverride(&cfg.MantisCategory, "MANTIS_CATEGORY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.RedisAddr, "REDIS_ADDR")
	envOverride(&cfg.RedisPassword, "REDIS_PASSWORD")
	envOverrideAllowEmpty(&cfg.StatusSyncSchedule, "STATUS_SYNC_SCHEDULE")
	envOverrideAllowEmpty(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.MantisProjectID, "MANTIS_PROJECT_ID"},
		{&cfg.RedisDB, "REDIS_DB"},
		{&cfg.StatusRefreshTTLSeconds, "STATUS_REFRESH_TTL_SECONDS"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
		{&cfg.ConfirmationWindowSeconds, "CONFIRMATION_WINDOW_SECONDS"},
		{&cfg.DedupWindowHours, "DEDUP_WINDOW_HOURS"},
		{&cfg.ClassifierRetryBackoffMillis, "CLASSIFIER_RETRY_BACKOFF_MS"},
		{&cfg.TroubleshootRetentionMinutes, "TROUBLESHOOT_RETENTION_MINUTES"},
	}
	for _, o := range ints {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return Config{}, err
		}
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.MantisProjectID == 0 {
		cfg.MantisProjectID = 1
	}
	if cfg.MantisCategory == "" {
		cfg.MantisCategory = "Washing Machine Support"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./supportbot.db"
	}
	if cfg.StatusRefreshTTLSeconds == 0 {
		cfg.StatusRefreshTTLSeconds = 60
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.ConfirmationWindowSeconds == 0 {
		cfg.ConfirmationWindowSeconds = 300
	}
	if cfg.DedupWindowHours == 0 {
		cfg.DedupWindowHours = 24
	}
	if cfg.ClassifierRetryBackoffMillis == 0 {
		cfg.ClassifierRetryBackoffMillis = 500
	}
	if cfg.TroubleshootRetentionMinutes == 0 {
		cfg.TroubleshootRetentionMinutes = 60
	}
	if _, ok := os.LookupEnv("STATUS_SYNC_SCHEDULE"); !ok && cfg.StatusSyncSchedule == "" {
		cfg.StatusSyncSchedule = "@every 30m"
	}
	if _, ok := os.LookupEnv("METRICS_ADDR"); !ok && cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if strings.EqualFold(cfg.StatusSyncSchedule, "off") {
		cfg.StatusSyncSchedule = ""
	}
	if strings.EqualFold(cfg.MetricsAddr, "off") {
		cfg.MetricsAddr = ""
	}
}

func (cfg Config) validate() error {
	required := []struct {
		name string
		val  string
	}{
		{"slack_bot_token", cfg.SlackBotToken},
		{"slack_app_token", cfg.SlackAppToken},
		{"mantis_base_url", cfg.MantisBaseURL},
		{"mantis_api_token", cfg.MantisAPIToken},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", r.name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'gemini', got '%s'", cfg.LLMProvider)
	}

	if cfg.ExternalHTTPTimeoutSeconds < 1 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 1", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.ConfirmationWindowSeconds < 10 {
		return fmt.Errorf("invalid confirmation_window_seconds '%d': must be >= 10", cfg.ConfirmationWindowSeconds)
	}
	if cfg.DedupWindowHours < 0 {
		return fmt.Errorf("invalid dedup_window_hours '%d': must be >= 0", cfg.DedupWindowHours)
	}
	if cfg.ClassifierRetryBackoffMillis < 0 {
		return fmt.Errorf("invalid classifier_retry_backoff_ms '%d': must be >= 0", cfg.ClassifierRetryBackoffMillis)
	}
	if cfg.StatusRefreshTTLSeconds < 0 {
		return fmt.Errorf("invalid status_refresh_ttl_seconds '%d': must be >= 0", cfg.StatusRefreshTTLSeconds)
	}
	if cfg.StatusSyncSchedule != "" {
		if _, err := cron.ParseStandard(cfg.StatusSyncSchedule); err != nil {
			return fmt.Errorf("invalid status_sync_schedule '%s': %w", cfg.StatusSyncSchedule, err)
		}
	}
	if cfg.LLMGlossaryPath != "" {
		if err := validateGlossaryPath(cfg.LLMGlossaryPath); err != nil {
			return fmt.Errorf("invalid llm_glossary_path '%s': %w", cfg.LLMGlossaryPath, err)
		}
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func (c Config) ConfirmationWindow() time.Duration {
	return time.Duration(c.ConfirmationWindowSeconds) * time.Second
}

func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowHours) * time.Hour
}

func (c Config) ClassifierRetryBackoff() time.Duration {
	return time.Duration(c.ClassifierRetryBackoffMillis) * time.Millisecond
}

func (c Config) TroubleshootRetention() time.Duration {
	return time.Duration(c.TroubleshootRetentionMinutes) * time.Minute
}

func (c Config) StatusRefreshTTL() time.Duration {
	return time.Duration(c.StatusRefreshTTLSeconds) * time.Second
}

func (c Config) ExternalHTTPTimeout() time.Duration {
	return time.Duration(c.ExternalHTTPTimeoutSeconds) * time.Second
}

func (c Config) RedisConfigured() bool {
	return c.RedisAddr != ""
}

func validateGlossaryPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read glossary: %w", err)
	}
	var g struct {
		Categories    []struct{} `yaml:"categories"`
		SeverityHints []struct{} `yaml:"severity_hints"`
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse glossary yaml: %w", err)
	}
	return nil
}
