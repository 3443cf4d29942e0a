package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Prefix of every variable, e.g. CHATWEB_API_BASE_URL.
const Prefix = "chatweb"

type Config struct {
	Addr          string        `envconfig:"addr" default:":8080"`
	Env           string        `envconfig:"env" default:"development"`
	LogLevel      string        `envconfig:"log_level" default:"info"`
	APIBaseURL    string        `envconfig:"api_base_url" required:"true"`
	APITimeout    time.Duration `envconfig:"api_timeout" default:"10s"`
	APIRetries    int           `envconfig:"api_retries" default:"2"`
	APIBackoff    time.Duration `envconfig:"api_backoff" default:"200ms"`
	JWTSecret     string        `envconfig:"jwt_secret" required:"true"`
	JWTIssuer     string        `envconfig:"jwt_issuer" default:"go-chat-web"`
	RedisAddr     string        `envconfig:"redis_addr"`
	RedisPassword string        `envconfig:"redis_password"`
	UsersCacheTTL time.Duration `envconfig:"users_cache_ttl" default:"5m"`
	SessionTTL    time.Duration `envconfig:"session_ttl" default:"30m"`
	PollInterval  time.Duration `envconfig:"poll_interval" default:"3s"`
	MinPoll       time.Duration `envconfig:"min_poll" default:"500ms"`
	TimeZone      string        `envconfig:"time_zone" default:"UTC"`
	TimeLayout    string        `envconfig:"time_layout" default:"15:04"`
	GroupsEnabled bool          `envconfig:"groups_enabled" default:"true"`
	// AllowedOrigins for the live websocket; empty accepts any origin.
	AllowedOrigins []string `envconfig:"allowed_origins"`

	location *time.Location
}

// Load reads an optional .env file outside production, then the environment.
func Load() (*Config, error) {
	if os.Getenv("CHATWEB_ENV") != "production" {
		if err := godotenv.Load("./.env"); err != nil && !os.IsNotExist(errors.Cause(err)) {
			logrus.WithError(err).Warn("couldn't load env vars")
		}
	}

	c := &Config{}
	if err := envconfig.Process(Prefix, c); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" || c.JWTSecret == "" {
		return errors.New("api base url and jwt secret must be set")
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return errors.Wrapf(err, "time zone %q", c.TimeZone)
	}
	c.location = loc
	if c.APIRetries < 0 {
		return errors.Errorf("api retries must not be negative, got %d", c.APIRetries)
	}
	if c.PollInterval < c.MinPoll {
		return errors.Errorf("poll interval %s is below the minimum %s", c.PollInterval, c.MinPoll)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// Location is the zone message timestamps are shown in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }
