package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"ADDR"` // 为空则不启用 presence mirror
	Password    string        `yaml:"password" env:"PASSWORD"`
	DB          int           `yaml:"db" env:"DB"`
	PresenceTTL time.Duration `yaml:"presence_ttl" env:"PRESENCE_TTL"`
}

type NATSConfig struct {
	URL           string `yaml:"url" env:"URL"` // 为空则不启用审计 tap
	SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

// AppConfig env tags are relative to EnvPrefix, e.g. PPCHAT_REDIS_ADDR.
type AppConfig struct {
	NodeID   int64  `yaml:"node_id" env:"NODE_ID"` // snowflake node, 0~1023
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"` // 为空则不启动 grpc health
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	SessionTTL     time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
	CookieSecure   bool          `yaml:"cookie_secure" env:"COOKIE_SECURE"`

	SendQueueSize    int `yaml:"send_queue_size" env:"SEND_QUEUE_SIZE"`
	EventQueueSize   int `yaml:"event_queue_size" env:"EVENT_QUEUE_SIZE"`
	NotifyQueueSize  int `yaml:"notify_queue_size" env:"NOTIFY_QUEUE_SIZE"`
	MaxFrameBytes    int `yaml:"max_frame_bytes" env:"MAX_FRAME_BYTES"`
	MaxBodyBytes     int `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	StatusLedgerSize int `yaml:"status_ledger_size" env:"STATUS_LEDGER_SIZE"`

	WriteWait       time.Duration `yaml:"write_wait" env:"WRITE_WAIT"`
	PongWait        time.Duration `yaml:"pong_wait" env:"PONG_WAIT"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	Redis RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
	NATS  NATSConfig  `yaml:"nats" envPrefix:"NATS_"`
}

// Default returns the built-in configuration. Everything external is off.
func Default() AppConfig {
	return AppConfig{
		NodeID:   1,
		HTTPAddr: ":8080",
		LogLevel: "info",

		JWTSecret:  "ppchat-dev-secret-change-me",
		SessionTTL: 24 * time.Hour,

		SendQueueSize:    256,
		EventQueueSize:   1024,
		NotifyQueueSize:  1024,
		MaxFrameBytes:    8 << 10,
		MaxBodyBytes:     4096,
		StatusLedgerSize: 10000,

		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    54 * time.Second,
		ShutdownTimeout: 15 * time.Second,

		Redis: RedisConfig{PresenceTTL: 2 * time.Minute},
		NATS:  NATSConfig{SubjectPrefix: "ppchat"},
	}
}

func (c *AppConfig) Validate() error {
	if c.NodeID < 0 || c.NodeID > 1023 {
		return errors.Errorf("node_id %d out of range 0~1023", c.NodeID)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http_addr is empty")
	}
	sizes := []struct {
		name string
		v    int
	}{
		{"send_queue_size", c.SendQueueSize},
		{"event_queue_size", c.EventQueueSize},
		{"notify_queue_size", c.NotifyQueueSize},
		{"max_frame_bytes", c.MaxFrameBytes},
		{"max_body_bytes", c.MaxBodyBytes},
		{"status_ledger_size", c.StatusLedgerSize},
	}
	for _, s := range sizes {
		if s.v <= 0 {
			return errors.Errorf("%s must be positive, got %d", s.name, s.v)
		}
	}
	durations := []struct {
		name string
		v    time.Duration
	}{
		{"session_ttl", c.SessionTTL},
		{"write_wait", c.WriteWait},
		{"pong_wait", c.PongWait},
		{"ping_interval", c.PingInterval},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.v <= 0 {
			return errors.Errorf("%s must be positive, got %s", d.name, d.v)
		}
	}
	if c.PingInterval >= c.PongWait {
		return errors.Errorf("ping_interval %s must be shorter than pong_wait %s", c.PingInterval, c.PongWait)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is empty")
	}
	if c.Redis.Addr != "" && c.Redis.PresenceTTL <= 0 {
		return errors.New("redis.presence_ttl must be positive")
	}
	if c.NATS.URL != "" && strings.TrimSpace(c.NATS.SubjectPrefix) == "" {
		return errors.New("nats.subject_prefix is empty")
	}
	return nil
}

// OriginAllowed reports whether a browser origin may open a websocket.
// An empty allow list accepts every origin, "*" does the same.
func (c *AppConfig) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(strings.TrimSuffix(o, "/"), strings.TrimSuffix(origin, "/")) {
			return true
		}
	}
	return false
}
