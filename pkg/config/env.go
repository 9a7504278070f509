package config

const EnvPrefix = "STOCKLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "STOCKLEDGER_APP_ENV"
	EnvPort         = "STOCKLEDGER_APP_PORT"
	EnvLogLevel     = "STOCKLEDGER_LOG_LEVEL"
	EnvLogWarnStack = "STOCKLEDGER_LOG_WARN_STACK"
	EnvServiceKind  = "STOCKLEDGER_SERVICE_KIND"

	EnvDBDSN         = "STOCKLEDGER_DB_DSN"
	EnvDBDriver      = "STOCKLEDGER_DB_DRIVER"
	EnvDBHost        = "STOCKLEDGER_DB_HOST"
	EnvDBPort        = "STOCKLEDGER_DB_PORT"
	EnvDBUser        = "STOCKLEDGER_DB_USER"
	EnvDBPassword    = "STOCKLEDGER_DB_PASSWORD"
	EnvDBName        = "STOCKLEDGER_DB_NAME"
	EnvDBSSLMode     = "STOCKLEDGER_DB_SSLMODE"
	EnvDBLockTimeout = "STOCKLEDGER_DB_LOCK_TIMEOUT"

	EnvRedisURL = "STOCKLEDGER_REDIS_URL"

	EnvJWTSecret  = "STOCKLEDGER_JWT_SECRET"
	EnvJWTIssuer  = "STOCKLEDGER_JWT_ISSUER"
	EnvJWTExpMins = "STOCKLEDGER_JWT_EXPIRATION_MINUTES"

	EnvCORSOrigins        = "STOCKLEDGER_CORS_ORIGINS"
	EnvRateLimitMutations = "STOCKLEDGER_RATE_LIMIT_MUTATIONS"
	EnvRateLimitWindow    = "STOCKLEDGER_RATE_LIMIT_WINDOW"
	EnvIdempotencyTTL     = "STOCKLEDGER_IDEMPOTENCY_TTL"

	EnvUseSQLite   = "STOCKLEDGER_USE_SQLITE"
	EnvAutoMigrate = "STOCKLEDGER_AUTO_MIGRATE"

	EnvReservationTTL        = "STOCKLEDGER_RESERVATION_TTL"
	EnvSweepBatchSize        = "STOCKLEDGER_RESERVATION_SWEEP_BATCH_SIZE"
	EnvRetryMaxAttempts      = "STOCKLEDGER_RETRY_MAX_ATTEMPTS"
	EnvRetryBaseDelay        = "STOCKLEDGER_RETRY_BASE_DELAY"
	EnvRetryMaxDelay         = "STOCKLEDGER_RETRY_MAX_DELAY"
	EnvConsumptionWindowDays = "STOCKLEDGER_CONSUMPTION_WINDOW_DAYS"
	EnvBulkMaxItems          = "STOCKLEDGER_BULK_MAX_ITEMS"

	EnvCronInterval      = "STOCKLEDGER_CRON_INTERVAL"
	EnvCronLockTTL       = "STOCKLEDGER_CRON_LOCK_TTL"
	EnvReconcileLookback = "STOCKLEDGER_RECONCILE_LOOKBACK"
	EnvReconcileEvery    = "STOCKLEDGER_RECONCILE_EVERY"
	EnvRetentionEvery    = "STOCKLEDGER_OUTBOX_RETENTION_EVERY"

	EnvGCPProjectID     = "STOCKLEDGER_GCP_PROJECT_ID"
	EnvPubSubStockTopic = "STOCKLEDGER_PUBSUB_STOCK_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
