package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration. Values come from the JSON
// config file first and may be overridden per field via environment
// variables.
type Config struct {
	Keyword  string         `env:"HARVESTD_KEYWORD" json:"keyword"`
	Dataset  DatasetConfig  `json:"dataset"`
	OCR      OCRConfig      `json:"ocr"`
	LLM      LLMConfig      `json:"llm"`
	Dedup    DedupConfig    `json:"dedup"`
	Channels ChannelsConfig `json:"channels"`
	Relay    RelayConfig    `json:"relay"`
	Gateway  GatewayConfig  `json:"gateway"`
}

type DatasetConfig struct {
	Path string `env:"HARVESTD_DATASET_PATH" json:"path"`
}

type OCRConfig struct {
	Endpoint       string `env:"HARVESTD_OCR_ENDPOINT"        json:"endpoint"`
	TimeoutSeconds int    `env:"HARVESTD_OCR_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

func (c OCRConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type LLMConfig struct {
	Provider       string `env:"HARVESTD_LLM_PROVIDER"        json:"provider"` // "openai" | "anthropic"
	Model          string `env:"HARVESTD_LLM_MODEL"           json:"model"`
	APIKey         string `env:"HARVESTD_LLM_API_KEY"         json:"api_key"`
	APIBase        string `env:"HARVESTD_LLM_API_BASE"        json:"api_base,omitempty"`
	TimeoutSeconds int    `env:"HARVESTD_LLM_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DedupConfig selects the idempotency cache backend and the per-platform
// TTL windows. Memory is the default; redis is for multi-process setups.
type DedupConfig struct {
	Backend            string `env:"HARVESTD_DEDUP_BACKEND"              json:"backend"` // "memory" | "redis"
	RedisAddr          string `env:"HARVESTD_DEDUP_REDIS_ADDR"           json:"redis_addr,omitempty"`
	RedisPassword      string `env:"HARVESTD_DEDUP_REDIS_PASSWORD"       json:"redis_password,omitempty"`
	RedisDB            int    `env:"HARVESTD_DEDUP_REDIS_DB"             json:"redis_db,omitempty"`
	TwitterTTLSeconds  int    `env:"HARVESTD_DEDUP_TWITTER_TTL_SECONDS"  json:"twitter_ttl_seconds"`
	FeishuTTLSeconds   int    `env:"HARVESTD_DEDUP_FEISHU_TTL_SECONDS"   json:"feishu_ttl_seconds"`
	TelegramTTLSeconds int    `env:"HARVESTD_DEDUP_TELEGRAM_TTL_SECONDS" json:"telegram_ttl_seconds"`
}

// TTLFor maps a platform name to its dedup window.
func (c DedupConfig) TTLFor(platform string) time.Duration {
	seconds := c.FeishuTTLSeconds
	switch platform {
	case "Twitter":
		seconds = c.TwitterTTLSeconds
	case "Telegram":
		seconds = c.TelegramTTLSeconds
	}
	if seconds <= 0 {
		seconds = defaultDedupTTLSeconds
	}
	return time.Duration(seconds) * time.Second
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Feishu   FeishuConfig   `json:"feishu"`
}

type DiscordConfig struct {
	Enabled bool   `env:"HARVESTD_CHANNELS_DISCORD_ENABLED" json:"enabled"`
	Token   string `env:"HARVESTD_CHANNELS_DISCORD_TOKEN"   json:"token"`
}

type TelegramConfig struct {
	Enabled bool   `env:"HARVESTD_CHANNELS_TELEGRAM_ENABLED" json:"enabled"`
	Token   string `env:"HARVESTD_CHANNELS_TELEGRAM_TOKEN"   json:"token"`
}

type FeishuConfig struct {
	Enabled           bool   `env:"HARVESTD_CHANNELS_FEISHU_ENABLED"            json:"enabled"`
	AppID             string `env:"HARVESTD_CHANNELS_FEISHU_APP_ID"             json:"app_id"`
	AppSecret         string `env:"HARVESTD_CHANNELS_FEISHU_APP_SECRET"         json:"app_secret"`
	VerificationToken string `env:"HARVESTD_CHANNELS_FEISHU_VERIFICATION_TOKEN" json:"verification_token"`
	BotName           string `env:"HARVESTD_CHANNELS_FEISHU_BOT_NAME"           json:"bot_name"`
}

type RelayConfig struct {
	Enabled                bool   `env:"HARVESTD_RELAY_ENABLED"                  json:"enabled"`
	DestinationChatID      string `env:"HARVESTD_RELAY_DESTINATION_CHAT_ID"      json:"destination_chat_id"`
	DestinationIDType      string `env:"HARVESTD_RELAY_DESTINATION_ID_TYPE"      json:"destination_id_type,omitempty"` // "chat_id" | "open_id"
	FreshnessWindowSeconds int    `env:"HARVESTD_RELAY_FRESHNESS_WINDOW_SECONDS" json:"freshness_window_seconds"`
}

// DestinationType resolves the receive-id addressing mode: chat_id posts
// to a group chat, open_id posts directly to a user.
func (c RelayConfig) DestinationType() string {
	if c.DestinationIDType == "" {
		return "chat_id"
	}
	return c.DestinationIDType
}

// FreshnessWindow returns the maximum age a group message may have and
// still be eligible for relay.
func (c RelayConfig) FreshnessWindow() time.Duration {
	if c.FreshnessWindowSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

// GatewayConfig is the listen address of the Feishu webhook endpoint.
type GatewayConfig struct {
	Host string `env:"HARVESTD_GATEWAY_HOST" json:"host"`
	Port int    `env:"HARVESTD_GATEWAY_PORT" json:"port"`
}

// defaultDedupTTLSeconds mirrors the 7.1h window the Feishu channel has
// always used for repeat-delivery filtering.
const defaultDedupTTLSeconds = 25560

func DefaultConfig() *Config {
	return &Config{
		Keyword: "crypto",
		Dataset: DatasetConfig{
			Path: "dataset.jsonl",
		},
		OCR: OCRConfig{
			Endpoint:       "http://127.0.0.1:8866",
			TimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Dedup: DedupConfig{
			Backend:            "memory",
			TwitterTTLSeconds:  defaultDedupTTLSeconds,
			FeishuTTLSeconds:   defaultDedupTTLSeconds,
			TelegramTTLSeconds: defaultDedupTTLSeconds,
		},
		Relay: RelayConfig{
			FreshnessWindowSeconds: 10,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 9891,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Env-only operation is fine; the file is optional.
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Keyword == "" {
		return errors.New("keyword is required")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return errors.New("llm.provider must be \"openai\" or \"anthropic\"")
	}
	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Dedup.RedisAddr == "" {
			return errors.New("dedup.redis_addr is required for the redis backend")
		}
	default:
		return errors.New("dedup.backend must be \"memory\" or \"redis\"")
	}
	if c.Relay.Enabled && c.Relay.DestinationChatID == "" {
		return errors.New("relay.destination_chat_id is required when relay is enabled")
	}
	switch c.Relay.DestinationIDType {
	case "", "chat_id", "open_id":
	default:
		return errors.New("relay.destination_id_type must be \"chat_id\" or \"open_id\"")
	}
	return nil
}
