package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	LogLevel       string        `mapstructure:"log_level"`
	Redis          RedisConfig   `mapstructure:"redis"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
	MembershipTTL  time.Duration `mapstructure:"membership_ttl"`
	WSConfig       `mapstructure:",squash"`
	ICEServerURLs  []string      `mapstructure:"ice_servers"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// WSConfig tunes each websocket connection.
type WSConfig struct {
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// New returns a viper instance with defaults and environment bindings.
// Keys map to upper-case env vars with dots replaced by underscores,
// so "redis.host" is read from REDIS_HOST.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("store_timeout", "3s")
	v.SetDefault("membership_ttl", "0s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("max_message_size", 64*1024)
	v.SetDefault("send_buffer", 256)
	v.SetDefault("rate_limit", 50.0)
	v.SetDefault("rate_burst", 100)
	v.SetDefault("ice_servers", "stun:stun.l.google.com:19302")
	return v
}

// Load reads an optional YAML file into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AllowedOrigins = splitList(v.GetStringSlice("allowed_origins"))
	cfg.ICEServerURLs = splitList(v.GetStringSlice("ice_servers"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store_timeout must be positive, got %s", c.StoreTimeout)
	}
	if c.MembershipTTL < 0 {
		return fmt.Errorf("membership_ttl must not be negative, got %s", c.MembershipTTL)
	}
	if c.WSConfig.PingPeriod <= 0 || c.WSConfig.PongWait <= c.WSConfig.PingPeriod {
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.WSConfig.PongWait, c.WSConfig.PingPeriod)
	}
	if c.WSConfig.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.WSConfig.SendBuffer)
	}
	if c.WSConfig.RateLimit < 0 || c.WSConfig.RateBurst < 0 {
		return fmt.Errorf("rate_limit and rate_burst must not be negative")
	}
	return nil
}

// IsProduction reports whether gin release mode and JSON logs should be used.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ICEServers returns the configured STUN/TURN URLs in the shape browsers
// expect for RTCPeerConnection.
func (c *Config) ICEServers() []webrtc.ICEServer {
	if len(c.ICEServerURLs) == 0 {
		return []webrtc.ICEServer{}
	}
	return []webrtc.ICEServer{{URLs: c.ICEServerURLs}}
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
