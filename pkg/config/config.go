package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "FLEAMKT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Notify       NotifyConfig
	Webhook      WebhookConfig
	Reconcile    ReconcileConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FLEAMKT_APP_ENV" required:"true"`
	Port         string `envconfig:"FLEAMKT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FLEAMKT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FLEAMKT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FLEAMKT_DB_DSN"`
	Driver string `envconfig:"FLEAMKT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FLEAMKT_DB_HOST"`
	Port     int    `envconfig:"FLEAMKT_DB_PORT" default:"5432"`
	User     string `envconfig:"FLEAMKT_DB_USER"`
	Password string `envconfig:"FLEAMKT_DB_PASSWORD"`
	Name     string `envconfig:"FLEAMKT_DB_NAME"`
	SSLMode  string `envconfig:"FLEAMKT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FLEAMKT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FLEAMKT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FLEAMKT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FLEAMKT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FLEAMKT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FLEAMKT_REDIS_ADDR"`
	Password     string        `envconfig:"FLEAMKT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FLEAMKT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FLEAMKT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FLEAMKT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FLEAMKT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FLEAMKT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FLEAMKT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"FLEAMKT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FLEAMKT_JWT_ISSUER" required:"true"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"FLEAMKT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"FLEAMKT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"FLEAMKT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type NotifyConfig struct {
	APIURL  string        `envconfig:"FLEAMKT_NOTIFY_API_URL" default:"https://notify-api.line.me/api/notify"`
	Timeout time.Duration `envconfig:"FLEAMKT_NOTIFY_TIMEOUT" default:"5s"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"FLEAMKT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"FLEAMKT_RECONCILE_INTERVAL" default:"15m"`
	MinAge    time.Duration `envconfig:"FLEAMKT_RECONCILE_MIN_AGE" default:"30m"`
	BatchSize int           `envconfig:"FLEAMKT_RECONCILE_BATCH_SIZE" default:"100"`
	LockTTL   time.Duration `envconfig:"FLEAMKT_RECONCILE_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FLEAMKT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		"FLEAMKT_DB_HOST": db.Host,
		"FLEAMKT_DB_USER": db.User,
		"FLEAMKT_DB_NAME": db.Name,
	}
	for _, key := range []string{"FLEAMKT_DB_HOST", "FLEAMKT_DB_USER", "FLEAMKT_DB_NAME"} {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either FLEAMKT_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
