package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	devTokenSecret = "dev-only-token-secret"
	devCodeSecret  = "dev-only-code-secret"
)

type Config struct {
	Env         string   `env:"APP_ENV" envDefault:"dev"`
	Port        int      `env:"PORT" envDefault:"8080"`
	FrontendURL string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	MaxBodyKB   int64    `env:"MAX_BODY_KB" envDefault:"64"`

	Store string `env:"STORE_BACKEND" envDefault:"postgres"`

	DB        DB    `envPrefix:"DB_"`
	Mongo     Mongo `envPrefix:"MONGO_"`
	Redis     Redis `envPrefix:"REDIS_"`
	Auth      Auth
	Mail      Mail
	Stripe    Stripe    `envPrefix:"STRIPE_"`
	Admin     Admin     `envPrefix:"ADMIN_"`
	OTel      OTel      `envPrefix:"OTEL_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
}

type DB struct {
	URL         string `env:"URL"`
	Host        string `env:"HOST" envDefault:"127.0.0.1"`
	Port        string `env:"PORT" envDefault:"5432"`
	User        string `env:"USER" envDefault:"accounthub"`
	Password    string `env:"PASSWORD" envDefault:"accounthub"`
	Name        string `env:"NAME" envDefault:"accounthub"`
	SSLMode     string `env:"SSLMODE" envDefault:"disable"`
	MaxConns    int32  `env:"MAX_CONNS" envDefault:"5"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
}

type Mongo struct {
	URI      string `env:"URI" envDefault:"mongodb://127.0.0.1:27017"`
	Database string `env:"DATABASE" envDefault:"accounthub"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type Auth struct {
	TokenSecret string        `env:"TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	BcryptCost  int           `env:"BCRYPT_COST" envDefault:"12"`
	CodeSecret  string        `env:"HMAC_VERIFICATION_CODE_SECRET"`
}

type Mail struct {
	Provider     string        `env:"MAIL_PROVIDER" envDefault:"log"`
	From         string        `env:"MAIL_FROM" envDefault:"no-reply@accounthub.local"`
	FromName     string        `env:"MAIL_FROM_NAME" envDefault:"Accounthub"`
	ContactInbox string        `env:"CONTACT_INBOX"`
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	Timeout      time.Duration `env:"MAIL_TIMEOUT" envDefault:"5s"`
}

type Stripe struct {
	SecretKey string `env:"SECRET_KEY"`
	Currency  string `env:"CURRENCY" envDefault:"usd"`
}

type Admin struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

type OTel struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"accounthub-api"`
}

type RateLimit struct {
	Limit  int           `env:"LIMIT" envDefault:"10"`
	Window time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load reads the process environment once. Outside prod a .env file is
// merged in first; variables already set win.
func Load() (Config, error) {
	var cfg Config

	if os.Getenv("APP_ENV") != "prod" {
		_ = godotenv.Load()
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse env: %w", err)
	}

	if !cfg.IsProd() {
		if cfg.Auth.TokenSecret == "" {
			cfg.Auth.TokenSecret = devTokenSecret
		}
		if cfg.Auth.CodeSecret == "" {
			cfg.Auth.CodeSecret = devCodeSecret
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store)
	}

	if c.IsProd() {
		if c.Auth.TokenSecret == "" {
			return errors.New("config: TOKEN_SECRET is required in prod")
		}
		if c.Auth.CodeSecret == "" {
			return errors.New("config: HMAC_VERIFICATION_CODE_SECRET is required in prod")
		}
	}

	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("config: BCRYPT_COST %d out of range", c.Auth.BcryptCost)
	}

	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be positive")
	}

	return nil
}

// DatabaseURL prefers DB_URL and otherwise assembles one from the parts.
func (c Config) DatabaseURL() string {
	if c.DB.URL != "" {
		return c.DB.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     c.DB.Host + ":" + c.DB.Port,
		Path:     "/" + c.DB.Name,
		RawQuery: "sslmode=" + c.DB.SSLMode,
	}

	return u.String()
}

// WithTimeout bounds a store or upstream call made on behalf of parent.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}
