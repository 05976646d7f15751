package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Mail transports.
const (
	MailSMTP     = "smtp"
	MailPostmark = "postmark"
	MailWebhook  = "webhook"
	MailLog      = "log"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Database
	DatabaseDriver string        `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns     int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBBusyTimeout  time.Duration `env:"DB_BUSY_TIMEOUT" envDefault:"5s"`

	// Send routing: when neither now nor queue is requested, queue everything.
	QueueAllByDefault bool `env:"QUEUE_ALL_BY_DEFAULT" envDefault:"false"`

	// Deferred queue draining
	DrainEnabled   bool          `env:"DRAIN_ENABLED" envDefault:"true"`
	DrainSchedule  string        `env:"DRAIN_SCHEDULE" envDefault:"@every 1m"`
	DrainWorkers   int           `env:"DRAIN_WORKERS" envDefault:"1"`
	DrainBatchSize int           `env:"DRAIN_BATCH_SIZE" envDefault:"50"`
	DrainMaxItems  int           `env:"DRAIN_MAX_ITEMS" envDefault:"0"`
	DrainClaimTTL  time.Duration `env:"DRAIN_CLAIM_TTL" envDefault:"15m"`

	// Mail transport
	MailTransport   string        `env:"MAIL_TRANSPORT" envDefault:"log"`
	MailFrom        string        `env:"MAIL_FROM" envDefault:"notices@localhost"`
	MailRateLimit   int           `env:"MAIL_RATE_LIMIT" envDefault:"20"`
	SMTPHost        string        `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"25"`
	SMTPUsername    string        `env:"SMTP_USERNAME"`
	SMTPPassword    string        `env:"SMTP_PASSWORD"`
	PostmarkServer  string        `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccount string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	WebhookURL      string        `env:"MAIL_WEBHOOK_URL"`
	WebhookTimeout  time.Duration `env:"MAIL_WEBHOOK_TIMEOUT" envDefault:"10s"`

	// Rendering
	TemplateDir     string `env:"TEMPLATE_DIR"`
	NoticeTypesFile string `env:"NOTICE_TYPES_FILE"`
	SiteName        string `env:"SITE_NAME" envDefault:"localhost"`
	SiteURL         string `env:"SITE_URL" envDefault:"http://localhost:8080"`
	NoticesPath     string `env:"NOTICES_PATH" envDefault:"/notices/settings"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would fail later at startup.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}
	switch c.MailTransport {
	case MailSMTP, MailPostmark, MailWebhook, MailLog:
	default:
		return fmt.Errorf("MAIL_TRANSPORT %q is not supported", c.MailTransport)
	}
	if c.DrainBatchSize <= 0 {
		return fmt.Errorf("DRAIN_BATCH_SIZE must be positive")
	}
	if c.DrainWorkers < 0 {
		return fmt.Errorf("DRAIN_WORKERS must not be negative")
	}
	if c.DrainMaxItems < 0 {
		return fmt.Errorf("DRAIN_MAX_ITEMS must not be negative")
	}
	return nil
}

// NoticesURL is the absolute URL of the notice settings page, exposed to
// templates as notices_url.
func (c *Config) NoticesURL() string {
	return c.SiteURL + c.NoticesPath
}
