package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across binaries.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"live-quiz"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Quiz     Quiz
	Client   Client
	CORS     CORS
}

// Postgres captures connection info for the bank database. An empty host
// disables it.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// Enabled reports whether a database is configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

// DSN renders a key/value connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Redis holds session store and cache configuration. An empty address keeps
// everything in process.
type Redis struct {
	Addr      string        `env:"REDIS_ADDR"`
	DB        int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize  int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	KeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"quiz"`
	Channel   string        `env:"REDIS_EVENTS_CHANNEL" envDefault:"quiz:events"`
	StateTTL  time.Duration `env:"REDIS_STATE_TTL" envDefault:"12h"`
	LockTTL   time.Duration `env:"REDIS_LOCK_TTL" envDefault:"10s"`
	LockWait  time.Duration `env:"REDIS_LOCK_WAIT" envDefault:"1s"`
}

// Enabled reports whether Redis is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Quiz groups session defaults.
type Quiz struct {
	BankID                 string        `env:"QUIZ_BANK_ID" envDefault:"general-knowledge"`
	BankFile               string        `env:"QUIZ_BANK_FILE"`
	DefaultQuestionSeconds int           `env:"DEFAULT_PER_QUESTION_SECONDS" envDefault:"30"`
	BankCacheTTL           time.Duration `env:"QUIZ_BANK_CACHE_TTL" envDefault:"5m"`
}

// Client configures the headless participant.
type Client struct {
	ServerURL    string        `env:"QUIZ_SERVER_URL" envDefault:"http://localhost:8080"`
	PollInterval time.Duration `env:"QUIZ_POLL_INTERVAL" envDefault:"2s"`
	RetryBase    time.Duration `env:"QUIZ_RETRY_BASE" envDefault:"500ms"`
	RetryMax     time.Duration `env:"QUIZ_RETRY_MAX" envDefault:"10s"`
	HTTPTimeout  time.Duration `env:"QUIZ_HTTP_TIMEOUT" envDefault:"5s"`
}

// CORS holds the origins allowed to open the push channel.
type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	return parse(env.Options{})
}

// LoadFrom parses config from the given variables instead of the process
// environment.
func LoadFrom(vars map[string]string) (*App, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *App) validate() error {
	if c.Postgres.Enabled() && (c.Postgres.User == "" || c.Postgres.Database == "") {
		return fmt.Errorf("parse config: PG_USER and PG_DATABASE are required when PG_HOST is set")
	}
	if c.Quiz.DefaultQuestionSeconds <= 0 {
		return fmt.Errorf("parse config: DEFAULT_PER_QUESTION_SECONDS must be positive")
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("parse config: QUIZ_POLL_INTERVAL must be positive")
	}
	return nil
}
