package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Batch        BatchConfig
	PubSub       PubSubConfig
	Cron         CronConfig
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
	Env          string `envconfig:"PROPOSALHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"PROPOSALHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PROPOSALHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PROPOSALHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PROPOSALHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PROPOSALHUB_DB_DSN"`
	Driver string `envconfig:"PROPOSALHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROPOSALHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"PROPOSALHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROPOSALHUB_DB_USER"`
	LegacyPassword string `envconfig:"PROPOSALHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROPOSALHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROPOSALHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROPOSALHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROPOSALHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROPOSALHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROPOSALHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PROPOSALHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PROPOSALHUB_REDIS_ADDR"`
	Password     string        `envconfig:"PROPOSALHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROPOSALHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROPOSALHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROPOSALHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROPOSALHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROPOSALHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROPOSALHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PROPOSALHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PROPOSALHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PROPOSALHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// BatchConfig tunes the notification batching engine.
type BatchConfig struct {
	MaxBatchSize      int           `envconfig:"PROPOSALHUB_BATCH_MAX_SIZE" default:"10"`
	MaxWindow         time.Duration `envconfig:"PROPOSALHUB_BATCH_MAX_WINDOW" default:"5m"`
	FlushInterval     time.Duration `envconfig:"PROPOSALHUB_BATCH_FLUSH_INTERVAL" default:"5s"`
	RetryBackoff      time.Duration `envconfig:"PROPOSALHUB_BATCH_RETRY_BACKOFF" default:"30s"`
	DeliveryWorkers   int           `envconfig:"PROPOSALHUB_BATCH_DELIVERY_WORKERS" default:"4"`
	QuietHoursEnabled bool          `envconfig:"PROPOSALHUB_BATCH_QUIET_HOURS_ENABLED" default:"false"`
	QuietHoursStart   string        `envconfig:"PROPOSALHUB_BATCH_QUIET_HOURS_START" default:"22:00"`
	QuietHoursEnd     string        `envconfig:"PROPOSALHUB_BATCH_QUIET_HOURS_END" default:"07:00"`
	WeekendMode       bool          `envconfig:"PROPOSALHUB_BATCH_WEEKEND_MODE" default:"false"`
	Timezone          string        `envconfig:"PROPOSALHUB_BATCH_TIMEZONE" default:"UTC"`
}

type PubSubConfig struct {
	ProjectID   string `envconfig:"PROPOSALHUB_GCP_PROJECT_ID"`
	DigestTopic string `envconfig:"PROPOSALHUB_PUBSUB_DIGEST_TOPIC"`
}

// Enabled reports whether digests should also be pushed through Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ProjectID) != "" && strings.TrimSpace(p.DigestTopic) != ""
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"PROPOSALHUB_CRON_INTERVAL" default:"24h"`
	NotificationRetention int           `envconfig:"PROPOSALHUB_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	DeadlineWindow        time.Duration `envconfig:"PROPOSALHUB_CRON_DEADLINE_WINDOW" default:"48h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PROPOSALHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PROPOSALHUB_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
