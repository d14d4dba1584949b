package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GitHubToken string `yaml:"github_token"`
	GitHubRepo  string `yaml:"github_repo"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	CatalogDir      string `yaml:"catalog_dir"`
	ContentMatching bool   `yaml:"content_matching"`

	DBPath string `yaml:"db_path"`

	Concurrency        int    `yaml:"concurrency"`
	ItemTimeoutSeconds int    `yaml:"item_timeout_seconds"`
	SLAHours           int    `yaml:"sla_hours"`
	CopilotActor       string `yaml:"copilot_actor"`
	BatchSchedule      string `yaml:"batch_schedule"`

	WeightAI            float64 `yaml:"weight_ai"`
	WeightLabel         float64 `yaml:"weight_label"`
	WeightHistory       float64 `yaml:"weight_history"`
	ThresholdAutoAssign float64 `yaml:"threshold_auto_assign"`
	ThresholdReview     float64 `yaml:"threshold_review"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.GitHubToken, "GITHUB_TOKEN")
	envOverride(&cfg.GitHubRepo, "GITHUB_REPO")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.CatalogDir, "CATALOG_DIR")
	envOverrideBool(&cfg.ContentMatching, "CONTENT_MATCHING")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideInt(&cfg.Concurrency, "CONCURRENCY")
	envOverrideInt(&cfg.ItemTimeoutSeconds, "ITEM_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.SLAHours, "SLA_HOURS")
	envOverride(&cfg.CopilotActor, "COPILOT_ACTOR")
	envOverride(&cfg.BatchSchedule, "BATCH_SCHEDULE")
	envOverrideFloat(&cfg.WeightAI, "WEIGHT_AI")
	envOverrideFloat(&cfg.WeightLabel, "WEIGHT_LABEL")
	envOverrideFloat(&cfg.WeightHistory, "WEIGHT_HISTORY")
	envOverrideFloat(&cfg.ThresholdAutoAssign, "THRESHOLD_AUTO_ASSIGN")
	envOverrideFloat(&cfg.ThresholdReview, "THRESHOLD_REVIEW")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.CatalogDir == "" {
		cfg.CatalogDir = "./catalog"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./triagebot.db"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.ItemTimeoutSeconds == 0 {
		cfg.ItemTimeoutSeconds = 120
	}
	if cfg.SLAHours == 0 {
		cfg.SLAHours = 48
	}
	if cfg.CopilotActor == "" {
		cfg.CopilotActor = "copilot"
	}
	if cfg.WeightAI == 0 && cfg.WeightLabel == 0 && cfg.WeightHistory == 0 {
		w := DefaultWeights()
		cfg.WeightAI, cfg.WeightLabel, cfg.WeightHistory = w.AI, w.Label, w.History
	}
	if cfg.ThresholdAutoAssign == 0 {
		cfg.ThresholdAutoAssign = DefaultThresholds().AutoAssign
	}
	if cfg.ThresholdReview == 0 {
		cfg.ThresholdReview = DefaultThresholds().Review
	}

	// Validate required fields
	required := map[string]string{
		"github_token": cfg.GitHubToken,
		"github_repo":  cfg.GitHubRepo,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	case "none":
		// Rule-based fallback only; no AI credentials needed.
	default:
		log.Fatalf("llm_provider must be 'anthropic', 'openai' or 'none', got '%s'", cfg.LLMProvider)
	}

	if cfg.Concurrency < 1 {
		log.Fatalf("invalid concurrency '%d': must be >= 1", cfg.Concurrency)
	}
	if cfg.ItemTimeoutSeconds < 1 {
		log.Fatalf("invalid item_timeout_seconds '%d': must be >= 1", cfg.ItemTimeoutSeconds)
	}
	if cfg.SLAHours < 1 {
		log.Fatalf("invalid sla_hours '%d': must be >= 1", cfg.SLAHours)
	}
	for name, w := range map[string]float64{
		"weight_ai":             cfg.WeightAI,
		"weight_label":          cfg.WeightLabel,
		"weight_history":        cfg.WeightHistory,
		"threshold_auto_assign": cfg.ThresholdAutoAssign,
		"threshold_review":      cfg.ThresholdReview,
	} {
		if w < 0 || w > 1 {
			log.Fatalf("invalid %s '%f': must be between 0 and 1", name, w)
		}
	}
	if cfg.ThresholdReview > cfg.ThresholdAutoAssign {
		log.Fatalf("threshold_review (%.2f) must not exceed threshold_auto_assign (%.2f)", cfg.ThresholdReview, cfg.ThresholdAutoAssign)
	}
	if cfg.SlackChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_bot_token is required when slack_channel_id is set")
	}

	return cfg
}

// Weights returns the configured decision weights.
func (c Config) Weights() DecisionWeights {
	return DecisionWeights{AI: c.WeightAI, Label: c.WeightLabel, History: c.WeightHistory}
}

// Thresholds returns the configured routing thresholds.
func (c Config) Thresholds() DecisionThresholds {
	return DecisionThresholds{AutoAssign: c.ThresholdAutoAssign, Review: c.ThresholdReview}
}

// SLAWindow returns the handoff window as a duration.
func (c Config) SLAWindow() time.Duration {
	return time.Duration(c.SLAHours) * time.Hour
}

// ItemTimeout returns the per-item pipeline deadline.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
