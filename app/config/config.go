package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

type Config struct {
	Log       Log       `yaml:"log"`
	Server    Server    `yaml:"server"`
	Provider  Provider  `yaml:"provider"`
	Summary   Summary   `yaml:"summary"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Redis     Redis     `yaml:"redis"`
	Client    Client    `yaml:"client"`
}

type Server struct {
	// Address to listen on
	Listen string `yaml:"listen" example:":8080" validate:"required"`
	// Header carrying a verified user id set by the identity proxy, preferred over the client address
	IdentityHeader string `yaml:"identity_header" example:"X-Authenticated-User"`
}

type Provider struct {
	// OpenAI compatible base url
	BaseURL string `yaml:"base_url" example:"https://api.groq.com/openai/v1" validate:"required,url"`
	// Provider token
	Token string `yaml:"token" example:"gsk_abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// Chat model
	Model string `yaml:"model" example:"llama3-70b-8192" validate:"required"`
	// Upper bound of a single completion call
	Timeout time.Duration `yaml:"timeout" example:"30s" validate:"gt=0"`
	// Outbound request throttle, 0 disables it
	RequestsPerSecond float64 `yaml:"requests_per_second" example:"5" validate:"gte=0"`
}

type Summary struct {
	// Summary model, falls back to provider settings when empty
	Model string `yaml:"model" example:"mixtral-8x7b-32768"`
}

type RateLimit struct {
	// Storage driver: memory or redis
	Driver string `yaml:"driver" example:"memory" validate:"oneof=memory redis"`
	// Admitted requests per window
	Limit int `yaml:"limit" example:"10" validate:"gt=0"`
	// Sliding window length
	Window time.Duration `yaml:"window" example:"1m" validate:"gt=0"`
	// Idle window cleanup period (memory driver)
	CleanupInterval time.Duration `yaml:"cleanup_interval" example:"5m" validate:"gt=0"`
}

type Redis struct {
	// Redis address
	Addr string `yaml:"addr" example:"localhost:6379"`
	// Redis password
	Password string `yaml:"password"`
	// Redis database number
	DB int `yaml:"db" example:"0"`
}

type Client struct {
	// Gateway base url used by the chat client
	GatewayURL string `yaml:"gateway_url" example:"http://localhost:8080" validate:"required,url"`
	// History storage driver: memory, file or sqlite
	HistoryDriver string `yaml:"history_driver" example:"sqlite" validate:"oneof=memory file sqlite"`
	// History storage location: a directory for the file driver, a database file for sqlite
	HistoryPath string `yaml:"history_path" example:"data/history.db"`
	// Storage key of the chat history
	SessionKey string `yaml:"session_key" example:"chatHistory" validate:"required"`
	// Reveal tick period
	TickInterval time.Duration `yaml:"tick_interval" example:"20ms" validate:"gt=0"`
	// Gateway request timeout
	Timeout time.Duration `yaml:"timeout" example:"60s" validate:"gt=0"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

// Path returns the config location, CONFIG_PATH overrides the default.
func Path() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	return defaultPath
}

func Load(path string) (*Config, error) {
	result, err := parse(path)
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	if result.RateLimit.Driver == "redis" && result.Redis.Addr == "" {
		return nil, oops.Errorf("redis.addr is required for the redis rate limit driver")
	}

	return result, nil
}

// LoadClient validates only the client section, the chat client never talks to the provider.
func LoadClient(path string) (*Config, error) {
	result, err := parse(path)
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result.Client); err != nil {
		return nil, oops.Errorf("failed to validate client config: %w", err)
	}

	return result, nil
}

func parse(path string) (*Config, error) {
	var result Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	return &result, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "llama3-70b-8192"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = "mixtral-8x7b-32768"
	}
	if cfg.RateLimit.Driver == "" {
		cfg.RateLimit.Driver = "memory"
	}
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 10
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.CleanupInterval == 0 {
		cfg.RateLimit.CleanupInterval = 5 * time.Minute
	}
	if cfg.Client.GatewayURL == "" {
		cfg.Client.GatewayURL = "http://localhost:8080"
	}
	if cfg.Client.HistoryDriver == "" {
		cfg.Client.HistoryDriver = "sqlite"
	}
	if cfg.Client.HistoryPath == "" {
		cfg.Client.HistoryPath = "data/history.db"
	}
	if cfg.Client.SessionKey == "" {
		cfg.Client.SessionKey = "chatHistory"
	}
	if cfg.Client.TickInterval == 0 {
		cfg.Client.TickInterval = 20 * time.Millisecond
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 60 * time.Second
	}
}
