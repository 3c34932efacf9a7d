// Package config loads the server configuration.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional TOML file, a .env file and the process environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Session   SessionConfig   `toml:"session"`
	Crypto    CryptoConfig    `toml:"crypto"`
	Assistant AssistantConfig `toml:"assistant"`
	SMTP      SMTPConfig      `toml:"smtp"`
	Redis     RedisConfig     `toml:"redis"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Messaging MessagingConfig `toml:"messaging"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Addr              string   `toml:"addr"`
	StaticDir         string   `toml:"static_dir"`
	AllowedOrigins    []string `toml:"allowed_origins"`
	ReadHeaderTimeout int      `toml:"read_header_timeout_secs"`
	WriteTimeout      int      `toml:"write_timeout_secs"`
	IdleTimeout       int      `toml:"idle_timeout_secs"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type SessionConfig struct {
	Secret string `toml:"secret"`
	Name   string `toml:"name"`
	MaxAge int    `toml:"max_age_secs"`
	Secure bool   `toml:"secure"`
}

// CryptoConfig selects the message key. MessageKey (base64 AES key) wins
// over KeyPassphrase; with neither set a random per-process key is used.
type CryptoConfig struct {
	MessageKey    string `toml:"message_key"`
	KeyPassphrase string `toml:"key_passphrase"`
	KeySalt       string `toml:"key_salt"`
}

type AssistantConfig struct {
	APIURL            string  `toml:"api_url"`
	APIKey            string  `toml:"api_key"`
	FallbackModel     string  `toml:"fallback_model"`
	DefaultModel      string  `toml:"default_model"`
	TimeoutSecs       int     `toml:"timeout_secs"`
	Temperature       float64 `toml:"temperature"`
	MaxTokens         int     `toml:"max_tokens"`
	Referer           string  `toml:"referer"`
	Title             string  `toml:"title"`
	RequestsPerMinute int     `toml:"requests_per_minute"`
	Burst             int     `toml:"burst"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type RedisConfig struct {
	// Addr enables the cross-instance fan-out bridge when set.
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

type KafkaConfig struct {
	// Brokers enables the message event stream when set.
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	ServiceName  string  `toml:"service_name"`
	SampleRatio  float64 `toml:"sample_ratio"`
}

type MessagingConfig struct {
	// EnforceDisappear hides messages whose disappear timer has elapsed.
	EnforceDisappear bool `toml:"enforce_disappear"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Load reads path (optional, may be empty), the .env file in the working
// directory and the environment, then applies defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) ApplyEnvOverrides() {
	setString(&c.Server.Addr, "CHATGOD_ADDR")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Session.Secret, "SECRET_KEY")
	setString(&c.Crypto.MessageKey, "MESSAGE_KEY")
	setString(&c.Crypto.KeyPassphrase, "MESSAGE_KEY_PASSPHRASE")
	setString(&c.Assistant.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Assistant.APIURL, "OPENROUTER_URL")
	setString(&c.SMTP.Username, "EMAIL_SENDER")
	setString(&c.SMTP.Password, "EMAIL_PASSWORD")
	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Telemetry.SampleRatio = f
		}
	}
	if v := os.Getenv("LOG_DEVELOPMENT"); v != "" {
		c.Log.Development, _ = strconv.ParseBool(v)
	}
}

func (c *Config) SetDefaults() {
	def(&c.Server.Addr, ":8080")
	def(&c.Server.StaticDir, "static")
	defInt(&c.Server.ReadHeaderTimeout, 5)
	defInt(&c.Server.WriteTimeout, 90)
	defInt(&c.Server.IdleTimeout, 90)

	def(&c.Database.Driver, "sqlite3")
	def(&c.Database.DSN, "chatgod.db")

	def(&c.Session.Name, "chatgod-session")
	defInt(&c.Session.MaxAge, 7*24*3600)

	def(&c.Crypto.KeySalt, "chatgod-message-key")

	def(&c.Assistant.APIURL, "https://openrouter.ai/api/v1")
	def(&c.Assistant.FallbackModel, "x-ai/grok-3-mini-beta")
	def(&c.Assistant.DefaultModel, "DeepSeek")
	defInt(&c.Assistant.TimeoutSecs, 60)
	if c.Assistant.Temperature == 0 {
		c.Assistant.Temperature = 0.7
	}
	defInt(&c.Assistant.MaxTokens, 500)
	def(&c.Assistant.Referer, "https://x07.in")
	def(&c.Assistant.Title, "ChatGod")
	defInt(&c.Assistant.RequestsPerMinute, 20)
	defInt(&c.Assistant.Burst, 5)

	def(&c.SMTP.Port, "587")
	def(&c.SMTP.From, c.SMTP.Username)

	def(&c.Redis.Channel, "chatgod:fanout")
	def(&c.Kafka.Topic, "chatgod.messages")

	def(&c.Telemetry.ServiceName, "chatgod")
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}

	def(&c.Log.Level, "info")
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if len(c.Session.Secret) < 32 && !c.Log.Development {
		return errors.New("session secret must be at least 32 bytes (set SECRET_KEY)")
	}
	if c.Crypto.MessageKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Crypto.MessageKey)
		if err != nil {
			return fmt.Errorf("message key: %w", err)
		}
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("message key must decode to 16, 24 or 32 bytes, got %d", len(key))
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio %v outside [0,1]", c.Telemetry.SampleRatio)
	}
	if c.Assistant.MaxTokens <= 0 {
		return errors.New("assistant max_tokens must be positive")
	}
	return nil
}

func (c *Config) AssistantTimeout() time.Duration {
	return time.Duration(c.Assistant.TimeoutSecs) * time.Second
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func def(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func defInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
