// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/warden/internal/logger"
	"github.com/woozymasta/warden/internal/vars"
)

// ErrVersion is returned by ParseArgs when only build info was requested.
var ErrVersion = errors.New("version requested")

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"WARDEN"`
	Registry  Registry      `group:"Registry Options" namespace:"registry" env-namespace:"WARDEN_REGISTRY"`
	Storage   Storage       `group:"Journal Options" namespace:"db" env-namespace:"WARDEN_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"WARDEN_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"WARDEN_RATE_LIMIT"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"WARDEN_A2S"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"WARDEN_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"4096"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Registry holds membership liveness settings.
type Registry struct {
	// betteralign:ignore

	LivenessTimeout time.Duration `long:"liveness-timeout" env:"LIVENESS_TIMEOUT" description:"Evict members silent for longer than this" default:"6s"`
	SweepInterval   time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" description:"Interval between liveness sweeps" default:"1s"`
	SweepDelay      time.Duration `long:"sweep-delay" env:"SWEEP_DELAY" description:"Delay before the first sweep after start" default:"10s"`
}

// Storage holds journal database configuration.
type Storage struct {
	// betteralign:ignore

	Path           string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite journal" default:"warden.db"`
	QueueSize      int           `long:"queue-size" env:"QUEUE_SIZE" description:"Journal write queue size" default:"1000"`
	Workers        int           `long:"workers" env:"WORKERS" description:"Journal writer goroutines" default:"2"`
	PruneOlderThan time.Duration `long:"prune-older-than" description:"Delete journal events older than duration and exit"`
	GenerateCount  int           `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"warden.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Disable country detection"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// RateLimit holds per-IP limits for register and update calls.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Requests allowed per IP within the window" default:"120"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Rate limit window duration" default:"1m"`
}

// ParseArgs parses args and environment into a validated Config.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Version {
		return &cfg, ErrVersion
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Parse reads the configuration from os.Args and the environment.
// It terminates the application if the configuration is invalid or if help or version was requested.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		switch {
		case errors.Is(err, ErrVersion):
			vars.Fprint(os.Stdout)
			os.Exit(0)
		case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
			os.Exit(0)
		case errors.As(err, &flagsErr):
			// go-flags already printed the error
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	return cfg
}

func (c *Config) validate() error {
	if c.Server.AuthToken == "" {
		return errors.New("required flag `-t, --auth-token' or environment variable `WARDEN_AUTH_TOKEN` was not specified")
	}
	if c.Registry.LivenessTimeout <= 0 {
		return fmt.Errorf("registry liveness timeout must be positive, got %s", c.Registry.LivenessTimeout)
	}
	if c.Registry.SweepInterval <= 0 {
		return fmt.Errorf("registry sweep interval must be positive, got %s", c.Registry.SweepInterval)
	}
	if c.Registry.SweepDelay < 0 {
		return fmt.Errorf("registry sweep delay must not be negative, got %s", c.Registry.SweepDelay)
	}
	if c.Storage.Workers < 1 {
		c.Storage.Workers = 1
	}
	if c.Storage.QueueSize < 1 {
		c.Storage.QueueSize = 1
	}

	return nil
}
