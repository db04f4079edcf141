package config

import (
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix     = "PPCHAT_"
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// Load builds the configuration in layers: defaults, YAML file, PPCHAT_*
// environment, command-line flags. Later layers win. environ nil means the
// process environment. pflag.ErrHelp is returned untouched when -h/--help
// is given.
func Load(args []string, environ map[string]string) (AppConfig, error) {
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	cfg := Default()

	path := configPath(args, environ)
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg, environ); err != nil {
		return cfg, err
	}

	fs := newFlagSet(&cfg)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return cfg, err
		}
		return cfg, errors.Wrap(err, "parse flags")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// configPath finds --config before the full flag set exists, so the file
// layer can sit underneath env and flags.
func configPath(args []string, environ map[string]string) string {
	pre := pflag.NewFlagSet("pre", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.SetOutput(io.Discard)
	path := pre.String("config", "", "")
	_ = pre.Parse(args)
	if *path != "" {
		return *path
	}
	return environ[EnvConfigFile]
}

func loadFile(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return errors.Wrapf(err, "decode config %s", path)
	}
	return nil
}

func newFlagSet(cfg *AppConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet("ppchat", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file (also "+EnvConfigFile+")")

	fs.Int64Var(&cfg.NodeID, "node-id", cfg.NodeID, "snowflake node id (0~1023)")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address, empty disables")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "websocket origins, empty allows any")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC secret for session tokens")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "session token lifetime")
	fs.BoolVar(&cfg.CookieSecure, "cookie-secure", cfg.CookieSecure, "mark the session cookie Secure")

	fs.IntVar(&cfg.SendQueueSize, "send-queue-size", cfg.SendQueueSize, "outbound frames buffered per connection")
	fs.IntVar(&cfg.EventQueueSize, "event-queue-size", cfg.EventQueueSize, "inbound events buffered by the hub")
	fs.IntVar(&cfg.NotifyQueueSize, "notify-queue-size", cfg.NotifyQueueSize, "taps buffered before dropping")
	fs.IntVar(&cfg.MaxFrameBytes, "max-frame-bytes", cfg.MaxFrameBytes, "largest inbound websocket frame")
	fs.IntVar(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "largest message body")
	fs.IntVar(&cfg.StatusLedgerSize, "status-ledger-size", cfg.StatusLedgerSize, "delivered messages remembered for read receipts")

	fs.DurationVar(&cfg.WriteWait, "write-wait", cfg.WriteWait, "websocket write deadline")
	fs.DurationVar(&cfg.PongWait, "pong-wait", cfg.PongWait, "websocket read deadline between pongs")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "websocket ping period")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown budget")

	fs.StringVar(&cfg.Redis.Addr, "redis-addr", cfg.Redis.Addr, "redis address for the presence mirror, empty disables")
	fs.StringVar(&cfg.Redis.Password, "redis-password", cfg.Redis.Password, "redis password")
	fs.IntVar(&cfg.Redis.DB, "redis-db", cfg.Redis.DB, "redis db")
	fs.DurationVar(&cfg.Redis.PresenceTTL, "redis-presence-ttl", cfg.Redis.PresenceTTL, "presence key expiry")
	fs.StringVar(&cfg.NATS.URL, "nats-url", cfg.NATS.URL, "nats url for the audit tap, empty disables")
	fs.StringVar(&cfg.NATS.SubjectPrefix, "nats-subject-prefix", cfg.NATS.SubjectPrefix, "audit subject prefix")
	return fs
}

// applyEnv overlays PPCHAT_* variables. An empty variable leaves the field
// as the file or default set it.
func applyEnv(cfg *AppConfig, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return errors.Wrap(err, "parse env")
	}
	cfg.AllowedOrigins = trimList(cfg.AllowedOrigins)
	return nil
}

func trimList(in []string) []string {
	var out []string
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
