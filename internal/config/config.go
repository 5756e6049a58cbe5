package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultSecret is a placeholder for local runs. Release mode refuses it.
const DefaultSecret = "change-me"

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	StaticPath    string        `mapstructure:"static_path"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	Secret        string        `mapstructure:"secret"`
	Issuer        string        `mapstructure:"issuer"`
	LogLevel      string        `mapstructure:"log_level"`
	HistoryLimit  int           `mapstructure:"history_limit"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	SendBuffer    int           `mapstructure:"send_buffer"`

	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Store     StoreConfig     `mapstructure:"store"`
	Seed      SeedConfig      `mapstructure:"seed"`
	Client    ClientConfig    `mapstructure:"client"`
}

type HeartbeatConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SeedConfig populates the in-memory store. Ignored for postgres.
type SeedConfig struct {
	Channels []SeedChannel `mapstructure:"channels"`
	Users    []SeedUser    `mapstructure:"users"`
}

type SeedChannel struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

type SeedUser struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
	Role        string `mapstructure:"role"`
}

type ClientConfig struct {
	ServerURL        string          `mapstructure:"server_url"`
	Token            string          `mapstructure:"token"`
	Room             string          `mapstructure:"room"`
	VoiceChannel     string          `mapstructure:"voice_channel"`
	ICEServers       []string        `mapstructure:"ice_servers"`
	Backoff          []time.Duration `mapstructure:"backoff"`
	SamplePeriod     time.Duration   `mapstructure:"sample_period"`
	ForceCooldown    time.Duration   `mapstructure:"force_cooldown"`
	HeartbeatPeriod  time.Duration   `mapstructure:"heartbeat_period"`
	NegotiationLimit time.Duration   `mapstructure:"negotiation_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("issuer", "voicechat")
	v.SetDefault("log_level", "info")
	v.SetDefault("history_limit", 100)
	v.SetDefault("max_message_len", 2000)
	v.SetDefault("send_buffer", 64)

	v.SetDefault("heartbeat.sweep_interval", "30s")
	v.SetDefault("heartbeat.timeout", "60s")
	v.SetDefault("rate_limit.messages", 10)
	v.SetDefault("rate_limit.interval", "5s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.max_conns", 10)

	v.SetDefault("seed.channels", []map[string]any{
		{"id": "general", "name": "general", "type": "text"},
		{"id": "random", "name": "random", "type": "text"},
		{"id": "lounge", "name": "Lounge", "type": "voice"},
	})
	v.SetDefault("seed.users", []map[string]any{
		{"id": "alice", "display_name": "alice", "role": "member"},
		{"id": "bob", "display_name": "bob", "role": "member"},
		{"id": "carol", "display_name": "carol", "role": "member"},
	})

	v.SetDefault("client.server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.room", "general")
	v.SetDefault("client.voice_channel", "lounge")
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.backoff", []string{"1s", "2s", "4s", "8s", "16s", "30s"})
	v.SetDefault("client.sample_period", "2s")
	v.SetDefault("client.force_cooldown", "30s")
	v.SetDefault("client.heartbeat_period", "20s")
	v.SetDefault("client.negotiation_timeout", "0s")
}

// Load reads config/config.<CONFIG_ENV>.yaml when present. Every key can be
// overridden with VOICE_<KEY>, nested keys joined by underscores.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Mode == "release" && (strings.TrimSpace(c.Secret) == "" || c.Secret == DefaultSecret) {
		return fmt.Errorf("secret must be set to a non-default value in release mode")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Heartbeat.Timeout <= 0 || c.Heartbeat.SweepInterval <= 0 {
		return fmt.Errorf("heartbeat.timeout and heartbeat.sweep_interval must be positive")
	}
	if c.RateLimit.Messages <= 0 || c.RateLimit.Interval <= 0 {
		return fmt.Errorf("rate_limit.messages and rate_limit.interval must be positive")
	}
	return nil
}
