package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	OTP      OTPConfig
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8080"`
	Env             string        `env:"APP_ENV" envDefault:"dev"` // dev or prod
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedOrigins  []string      `env:"TRUSTED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	APIPrefix       string        `env:"API_PREFIX" envDefault:"/api/auth"`
}

type DatabaseConfig struct {
	Driver         string `env:"DB_DRIVER" envDefault:"postgres"` // postgres or sqlite
	Host           string `env:"DB_HOST" envDefault:"localhost"`
	Port           string `env:"DB_PORT" envDefault:"5432"`
	User           string `env:"DB_USER" envDefault:"postgres"`
	Password       string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName         string `env:"DB_NAME" envDefault:"payflow"`
	SSLMode        string `env:"DB_SSLMODE" envDefault:"disable"`
	ChannelBinding string `env:"DB_CHANNEL_BINDING"` // "require" for Neon DB, empty for local
	SQLitePath     string `env:"DB_SQLITE_PATH" envDefault:"payflow.db"`
	MaxOpenConns   int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns   int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	AutoMigrate    bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"` // empty disables Redis
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	TokenFormat    string        `env:"TOKEN_FORMAT" envDefault:"paseto"` // paseto or jwt
	PasetoKey      string        `env:"PASETO_KEY"`                       // 32 bytes for v4.local
	JWTSecret      string        `env:"JWT_SECRET"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	PasswordHasher string        `env:"PASSWORD_HASHER" envDefault:"argon2id"` // argon2id or bcrypt
	BcryptCost     int           `env:"BCRYPT_COST" envDefault:"10"`
}

type OTPConfig struct {
	TTL           time.Duration `env:"OTP_TTL" envDefault:"10m"`
	Delivery      string        `env:"OTP_DELIVERY" envDefault:"response"` // response or log
	SweepInterval time.Duration `env:"OTP_SWEEP_INTERVAL" envDefault:"15m"`
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Env {
	case "dev", "prod":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be dev or prod, got %q", c.Server.Env))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}

	switch c.Auth.TokenFormat {
	case "paseto":
		if len(c.Auth.PasetoKey) != 32 {
			errs = append(errs, fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey)))
		}
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.Auth.JWTSecret)))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_FORMAT must be paseto or jwt, got %q", c.Auth.TokenFormat))
	}

	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	switch c.Auth.PasswordHasher {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be argon2id or bcrypt, got %q", c.Auth.PasswordHasher))
	}

	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}

	switch c.OTP.Delivery {
	case "response", "log":
	default:
		errs = append(errs, fmt.Errorf("OTP_DELIVERY must be response or log, got %q", c.OTP.Delivery))
	}

	if c.OTP.SweepInterval < 0 {
		errs = append(errs, errors.New("OTP_SWEEP_INTERVAL must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Enabled reports whether a Redis address was configured
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}
