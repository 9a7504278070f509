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
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Inventory    InventoryConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Inventory.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOCKLEDGER_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a transaction waits on a stock row lock.
	LockTimeout time.Duration `envconfig:"STOCKLEDGER_DB_LOCK_TIMEOUT" default:"5s"`
	// SlowQuery logs statements slower than this at warn; zero turns it off.
	SlowQuery time.Duration `envconfig:"STOCKLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKLEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

// HTTPConfig holds the API edge settings.
type HTTPConfig struct {
	CORSOrigins []string `envconfig:"STOCKLEDGER_CORS_ORIGINS" default:"http://localhost:3000"`
	// RateLimitMutations caps stock-mutating requests per actor per RateLimitWindow. Zero disables it.
	RateLimitMutations int           `envconfig:"STOCKLEDGER_RATE_LIMIT_MUTATIONS" default:"120"`
	RateLimitWindow    time.Duration `envconfig:"STOCKLEDGER_RATE_LIMIT_WINDOW" default:"1m"`
	IdempotencyTTL     time.Duration `envconfig:"STOCKLEDGER_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`
}

// InventoryConfig tunes reservation expiry, retry behavior and reporting.
type InventoryConfig struct {
	ReservationTTL        time.Duration `envconfig:"STOCKLEDGER_RESERVATION_TTL" default:"72h"`
	SweepBatchSize        int           `envconfig:"STOCKLEDGER_RESERVATION_SWEEP_BATCH_SIZE" default:"100"`
	RetryMaxAttempts      int           `envconfig:"STOCKLEDGER_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay        time.Duration `envconfig:"STOCKLEDGER_RETRY_BASE_DELAY" default:"50ms"`
	RetryMaxDelay         time.Duration `envconfig:"STOCKLEDGER_RETRY_MAX_DELAY" default:"1s"`
	ConsumptionWindowDays int           `envconfig:"STOCKLEDGER_CONSUMPTION_WINDOW_DAYS" default:"30"`
	BulkMaxItems          int           `envconfig:"STOCKLEDGER_BULK_MAX_ITEMS" default:"1000"`
}

func (i InventoryConfig) validate() error {
	if i.ReservationTTL < 0 {
		return fmt.Errorf("%s must not be negative", EnvReservationTTL)
	}
	if i.RetryMaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvRetryMaxAttempts)
	}
	if i.ConsumptionWindowDays < 1 {
		return fmt.Errorf("%s must be at least 1", EnvConsumptionWindowDays)
	}
	if i.BulkMaxItems < 1 {
		return fmt.Errorf("%s must be at least 1", EnvBulkMaxItems)
	}
	return nil
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"STOCKLEDGER_CRON_INTERVAL" default:"5m"`
	LockTTL           time.Duration `envconfig:"STOCKLEDGER_CRON_LOCK_TTL" default:"4m"`
	ReconcileLookback time.Duration `envconfig:"STOCKLEDGER_RECONCILE_LOOKBACK" default:"24h"`
	ReconcileEvery    time.Duration `envconfig:"STOCKLEDGER_RECONCILE_EVERY" default:"1h"`
	RetentionEvery    time.Duration `envconfig:"STOCKLEDGER_OUTBOX_RETENTION_EVERY" default:"1h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOCKLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StockTopic string `envconfig:"STOCKLEDGER_PUBSUB_STOCK_TOPIC" default:"stock-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Retention applies to delivered or dead-lettered outbox rows.
	Retention time.Duration `envconfig:"STOCKLEDGER_OUTBOX_RETENTION" default:"720h"`
	// DLQRetention of zero keeps dead letters forever.
	DLQRetention time.Duration `envconfig:"STOCKLEDGER_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = "sqlite"
		db.DSN = "file:stockledger.db?cache=shared&_busy_timeout=5000"
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
