package config

const EnvPrefix = "CACTILIA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "CACTILIA_APP_ENV"
	EnvPort     = "CACTILIA_APP_PORT"
	EnvLogLevel = "CACTILIA_LOG_LEVEL"

	EnvDBDSN    = "CACTILIA_DB_DSN"
	EnvDBDriver = "CACTILIA_DB_DRIVER"
	EnvDBHost   = "CACTILIA_DB_HOST"
	EnvDBUser   = "CACTILIA_DB_USER"
	EnvDBName   = "CACTILIA_DB_NAME"

	EnvRedisURL = "CACTILIA_REDIS_URL"

	EnvGCPProjectID           = "CACTILIA_GCP_PROJECT_ID"
	EnvPubSubDataQualityTopic = "CACTILIA_PUBSUB_DATA_QUALITY_TOPIC"

	EnvShippingFallbackPrice = "CACTILIA_SHIPPING_FALLBACK_BASE_PRICE"
	EnvShippingSelectionTTL  = "CACTILIA_SHIPPING_SELECTION_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
