package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort       string        `env:"HTTP_PORT" envDefault:"8080"`
	AppEnv         string        `env:"APP_ENV" envDefault:"production"`
	AppURL         string        `env:"APP_URL" envDefault:"http://localhost:3000"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	DBQueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"3s"`
	RunMigrations  bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	AuthRateLimit  float64       `env:"AUTH_RATE_LIMIT" envDefault:"10"`

	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTSessionTTL time.Duration `env:"JWT_SESSION_TTL" envDefault:"24h"`

	TwoFactorIssuer   string        `env:"TWO_FACTOR_ISSUER" envDefault:"Backpack Management"`
	TOTPMaxAttempts   int           `env:"TOTP_MAX_ATTEMPTS" envDefault:"5"`
	TOTPAttemptWindow time.Duration `env:"TOTP_ATTEMPT_WINDOW" envDefault:"5m"`

	ResetMaxRequests   int           `env:"RESET_MAX_REQUESTS" envDefault:"3"`
	ResetRequestWindow time.Duration `env:"RESET_REQUEST_WINDOW" envDefault:"15m"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Backpack Management"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// IsDevelopment indica si el servicio corre en modo desarrollo.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
